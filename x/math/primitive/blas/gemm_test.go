package blas

import "testing"

func assertEqualSlice(t *testing.T, got, want []float32) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestGemmNN(t *testing.T) {
	a := []float32{1, 2, 3, 4, 5, 6} // 2x3
	b := []float32{7, 8, 9, 10, 11, 12} // 3x2
	out := make([]float32, 4)
	Gemm(false, false, a, 2, 3, b, 3, 2, out)
	assertEqualSlice(t, out, []float32{58, 64, 139, 154})
}

func TestGemmNT(t *testing.T) {
	a := []float32{1, 2, 3, 4, 5, 6} // 2x3
	b := []float32{7, 9, 11, 8, 10, 12} // 2x3, so B^T is 3x2 matching TestGemmNN's b
	out := make([]float32, 4)
	Gemm(false, true, a, 2, 3, b, 2, 3, out)
	assertEqualSlice(t, out, []float32{58, 64, 139, 154})
}

func TestGemmTN(t *testing.T) {
	// A^T where A is 3x2 equals the 2x3 operand from TestGemmNN.
	a := []float32{1, 4, 2, 5, 3, 6} // 3x2, A^T is 2x3 = {1,2,3,4,5,6}
	b := []float32{7, 8, 9, 10, 11, 12} // 3x2
	out := make([]float32, 4)
	Gemm(true, false, a, 3, 2, b, 3, 2, out)
	assertEqualSlice(t, out, []float32{58, 64, 139, 154})
}

func TestGemmTT(t *testing.T) {
	a := []float32{1, 4, 2, 5, 3, 6}    // 3x2, A^T = {1,2,3,4,5,6}
	b := []float32{7, 9, 11, 8, 10, 12} // 2x3, B^T = {7,8,9,10,11,12}
	out := make([]float32, 4)
	Gemm(true, true, a, 3, 2, b, 2, 3, out)
	assertEqualSlice(t, out, []float32{58, 64, 139, 154})
}

func TestGemmMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on inner-dimension mismatch")
		}
	}()
	a := []float32{1, 2, 3}
	b := []float32{1, 2, 3, 4}
	out := make([]float32, 1)
	Gemm(false, false, a, 1, 3, b, 4, 1, out)
}
