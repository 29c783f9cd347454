package checksum

import "testing"

// RFC-1321 MD5 vectors (spec.md §8 test vector D).
func TestBatchComputeFullMatchesScalarRFC1321(t *testing.T) {
	inputs := [][]byte{
		[]byte(""),
		[]byte("a"),
		[]byte("abc"),
		[]byte("message digest"),
	}
	want := []string{
		"d41d8cd98f00b204e9800998ecf8427e",
		"0cc175b9c0f1b6a831c399e269772661",
		"900150983cd24fb0d6963f7d28e17f72",
		"f96b697d7cb7938d525a2f31aaf161d0",
	}

	got := BatchComputeFull(MD5, 0, inputs)
	for i := range inputs {
		if hexString(got[i]) != want[i] {
			t.Errorf("BatchComputeFull[%d] = %s, want %s", i, hexString(got[i]), want[i])
		}
		scalar := ComputeFull(MD5, 0, inputs[i])
		if hexString(scalar) != hexString(got[i]) {
			t.Errorf("batch/scalar mismatch at %d: %s vs %s", i, hexString(got[i]), hexString(scalar))
		}
	}
}

func hexString(b []byte) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexdigits[c>>4]
		out[i*2+1] = hexdigits[c&0xf]
	}
	return string(out)
}
