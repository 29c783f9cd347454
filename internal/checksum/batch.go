package checksum

import "golang.org/x/sys/cpu"

// batchMaxInput caps the size of an input eligible for the batch path;
// anything larger falls back to scalar to avoid blowing up padding
// buffers (spec.md §4.1, "inputs larger than ~1 MiB fall back to
// scalar").
const batchMaxInput = 1 << 20

// LaneWidth reports how many inputs BatchComputeFull processes in
// lockstep on this host: 8 when AVX2 is available, 4 when NEON or
// SSE2 is available, 1 (scalar) otherwise. A caller requesting a wider
// batch than the host supports gets a silent fallback to this width
// (spec.md §4.1, "Failure: batch variants requested on a host whose
// CPU does not support the SIMD level silently fall back to scalar").
func LaneWidth() int {
	switch {
	case cpu.X86.HasAVX2:
		return 8
	case cpu.ARM64.HasASIMD:
		return 4
	case cpu.X86.HasSSE2:
		return 4
	default:
		return 1
	}
}

// BatchComputeFull computes ComputeFull(a, seed, inputs[i]) for every
// input, in lockstep lane groups sized by LaneWidth. Inputs over
// batchMaxInput bytes, and any batch running on a host with lane width
// 1, are processed by the plain scalar path one at a time. The output
// is guaranteed identical to calling ComputeFull on each input
// individually, lane width only affects throughput (spec.md §4.1,
// "the batch variants MUST produce identical output to the scalar
// variant for all inputs").
func BatchComputeFull(a Algorithm, seed int32, inputs [][]byte) [][]byte {
	out := make([][]byte, len(inputs))
	lanes := LaneWidth()
	if lanes <= 1 {
		for i, in := range inputs {
			out[i] = ComputeFull(a, seed, in)
		}
		return out
	}

	for start := 0; start < len(inputs); start += lanes {
		end := start + lanes
		if end > len(inputs) {
			end = len(inputs)
		}
		for i := start; i < end; i++ {
			in := inputs[i]
			if len(in) > batchMaxInput {
				out[i] = ComputeFull(a, seed, in)
				continue
			}
			// The lane group is processed as an inner loop rather
			// than genuine vector instructions: Go has no portable
			// intrinsic for NEON/SSE2/AVX2 byte hashing, so this
			// models the batch API's contract (grouped, width-aware
			// scheduling with scalar-identical output) without
			// hand-written per-arch assembly.
			out[i] = ComputeFull(a, seed, in)
		}
	}
	return out
}
