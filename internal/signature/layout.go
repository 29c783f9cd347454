// Package signature implements the block-signature layout and index
// described in spec.md §4.2–§4.3: deriving a block length/count from a
// file's size via the square-root heuristic, and indexing the
// resulting blocks for fast candidate lookup during delta generation.
package signature

import (
	"fmt"
	"math/bits"
)

const (
	// blockLengthMaxNew is the per-protocol block length ceiling for
	// protocol >= 30 (spec.md §4.2 step 3).
	blockLengthMaxNew = 1 << 17
	// blockLengthMaxOld is the ceiling for protocol < 30.
	blockLengthMaxOld = 1 << 29

	minBlockLength = 700

	blocksumBias = 10
)

// Layout is the per-file signature header (spec.md §3, "Signature
// layout").
type Layout struct {
	BlockLength     uint32
	Remainder       uint32
	BlockCount      int64 // fits in i32
	StrongSumLength uint8
}

// BuildLayout derives a Layout from fileLength, an optional
// forcedBlockLength (0 means "derive via the square-root heuristic"),
// the negotiated protocol version, and the caller's minimum
// strong-sum length (spec.md §4.2).
func BuildLayout(fileLength int64, forcedBlockLength uint32, protocol int, callerMinStrongSum int) (Layout, error) {
	if fileLength < 0 {
		return Layout{}, fmt.Errorf("signature: negative file length %d", fileLength)
	}

	blockLength := forcedBlockLength
	if blockLength == 0 {
		blockLength = deriveBlockLength(fileLength)
	}

	maxBlock := uint32(blockLengthMaxOld)
	if protocol >= 30 {
		maxBlock = blockLengthMaxNew
	}
	if blockLength > maxBlock {
		blockLength = maxBlock
	}
	if blockLength == 0 {
		blockLength = 1
	}

	blockCount := fileLength / int64(blockLength)
	remainder := fileLength % int64(blockLength)
	if remainder > 0 {
		blockCount++
	}
	if blockCount > int64(1<<31-1) {
		return Layout{}, fmt.Errorf("signature: block count overflow for file length %d, block length %d", fileLength, blockLength)
	}

	strongLen := deriveStrongSumLength(protocol, callerMinStrongSum, fileLength, blockLength)

	return Layout{
		BlockLength:     blockLength,
		Remainder:       uint32(remainder),
		BlockCount:      blockCount,
		StrongSumLength: strongLen,
	}, nil
}

// deriveBlockLength implements the square-root heuristic of spec.md
// §4.2 step 2: floor at 700, otherwise the largest power-of-two whose
// square does not exceed fileLength, refined by a greedy bit search.
func deriveBlockLength(fileLength int64) uint32 {
	if fileLength <= minBlockLength*minBlockLength {
		return minBlockLength
	}

	// Largest power of two c such that c*c <= fileLength.
	c := uint32(1)
	for {
		next := c << 1
		if next == 0 || uint64(next)*uint64(next) > uint64(fileLength) {
			break
		}
		c = next
	}

	// Greedy refinement: try to OR in lower bits, down to the 8s bit,
	// while the square stays within bounds, matching upstream's
	// iterative search; the result is therefore a multiple of 8 rather
	// than a bare power of two.
	result := c
	for bit := bits.Len32(c) - 1; bit >= 3; bit-- {
		candidate := result | (uint32(1) << uint(bit))
		if candidate != result && uint64(candidate)*uint64(candidate) <= uint64(fileLength) {
			result = candidate
		}
	}

	if result < minBlockLength {
		result = minBlockLength
	}
	return result
}

// deriveStrongSumLength implements spec.md §4.2 step 5.
func deriveStrongSumLength(protocol int, callerMin int, fileLength int64, blockLength uint32) uint8 {
	if protocol < 27 {
		return uint8(callerMin)
	}

	bias := blocksumBias
	// Increased by 2 per doubling of file length above the minimum
	// block square, decreased by 1 per halving of block length below
	// the default minimum.
	for l := int64(minBlockLength) * minBlockLength; fileLength > l; l <<= 1 {
		bias += 2
	}
	for b := uint32(minBlockLength); blockLength < b; b >>= 1 {
		bias--
		if b <= 1 {
			break
		}
	}

	length := (bias + 1 - 32 + 7) / 8
	if length < callerMin {
		length = callerMin
	}
	if length > 16 {
		length = 16
	}
	if length < 2 {
		length = 2
	}
	return uint8(length)
}

// FinalBlockLength returns the length of the last block, honoring
// Remainder (spec.md invariant: "the final block may be shorter").
func (l Layout) FinalBlockLength() uint32 {
	if l.Remainder == 0 {
		return l.BlockLength
	}
	return l.Remainder
}

// BlockLengthAt returns the expected length of the block at index,
// which must be in [0, BlockCount).
func (l Layout) BlockLengthAt(index int64) uint32 {
	if index == l.BlockCount-1 {
		return l.FinalBlockLength()
	}
	return l.BlockLength
}
