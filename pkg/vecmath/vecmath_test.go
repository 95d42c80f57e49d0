package vecmath

import (
	"math"
	"testing"
)

func TestNormalize_UnitNorm(t *testing.T) {
	tests := []struct {
		name string
		in   []float32
	}{
		{"2d", []float32{3, 4}},
		{"negative", []float32{-1, 2, -3}},
		{"high dim", make([]float32, 512)},
		{"tiny values", []float32{1e-6, 2e-6}},
	}
	// give the high-dim case non-zero content
	for i := range tests[2].in {
		tests[2].in[i] = float32(i%7) - 3
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Normalize(tt.in)
			if got := L2Norm(out); math.Abs(got-1.0) > 1e-5 {
				t.Errorf("L2Norm after Normalize = %v, want 1.0", got)
			}
		})
	}
}

func TestNormalize_ZeroVector(t *testing.T) {
	out := Normalize([]float32{0, 0, 0})
	for i, v := range out {
		if v != 0 {
			t.Errorf("out[%d] = %v, want 0", i, v)
		}
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	v := []float32{0.3, -0.7, 2.1, 0.05}
	once := Normalize(v)
	twice := Normalize(once)
	for i := range once {
		if math.Abs(float64(once[i]-twice[i])) > 1e-6 {
			t.Fatalf("index %d: once=%v twice=%v", i, once[i], twice[i])
		}
	}
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	v := []float32{3, 4}
	_ = Normalize(v)
	if v[0] != 3 || v[1] != 4 {
		t.Errorf("input mutated: %v", v)
	}
}

func TestWeightedSum(t *testing.T) {
	got := WeightedSum([][]float32{{1, 0}, {0, 1}}, []float64{0.5, 0.5})
	want := []float32{0.5, 0.5}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func TestWeightedSum_ScaleInvariantAfterNormalize(t *testing.T) {
	vecs := [][]float32{{1, 2, 3}, {-1, 0, 1}}
	a := Normalize(WeightedSum(vecs, []float64{0.3, 0.7}))
	b := Normalize(WeightedSum(vecs, []float64{3, 7}))
	for i := range a {
		if math.Abs(float64(a[i]-b[i])) > 1e-5 {
			t.Fatalf("index %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestWeightedSum_Mismatch(t *testing.T) {
	if got := WeightedSum([][]float32{{1, 2}}, []float64{1, 2}); got != nil {
		t.Errorf("weights mismatch: got %v, want nil", got)
	}
	if got := WeightedSum([][]float32{{1, 2}, {1}}, []float64{1, 1}); got != nil {
		t.Errorf("dimension mismatch: got %v, want nil", got)
	}
	if got := WeightedSum(nil, nil); got != nil {
		t.Errorf("empty: got %v, want nil", got)
	}
}

func TestMean(t *testing.T) {
	got := Mean([][]float32{{1, 0}, {0, 1}})
	want := []float32{0.5, 0.5}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Errorf("got %v, want %v", got, want)
		}
	}
	if Mean(nil) != nil {
		t.Error("Mean(nil) should be nil")
	}
}

func TestInnerProduct(t *testing.T) {
	if got := InnerProduct([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("orthogonal: got %v", got)
	}
	if got := InnerProduct([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Errorf("identical unit: got %v", got)
	}
	if got := InnerProduct([]float32{1}, []float32{1, 2}); got != 0 {
		t.Errorf("mismatch: got %v", got)
	}
}
