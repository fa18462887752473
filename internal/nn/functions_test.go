package nn

import (
	"math"
	"testing"
)

func TestSoftmaxIsDistribution(t *testing.T) {
	got := Softmax([]float64{1, 2, 3, 1000})
	sum := 0.0
	for i, p := range got {
		if p < 0 || math.IsNaN(p) {
			t.Fatalf("unexpected probability at %d: %f", i, p)
		}
		sum += p
	}
	if math.Abs(sum-1) > 1e-12 {
		t.Fatalf("expected softmax to sum to 1, got=%f", sum)
	}
	if got[3] < 0.999 {
		t.Fatalf("expected dominant logit to take the mass, got=%f", got[3])
	}
}

func TestSoftmaxUniformForEqualLogits(t *testing.T) {
	got := Softmax([]float64{-4, -4, -4, -4})
	for i, p := range got {
		if math.Abs(p-0.25) > 1e-12 {
			t.Fatalf("unexpected uniform probability at %d: %f", i, p)
		}
	}
	if len(Softmax(nil)) != 0 {
		t.Fatal("expected empty softmax for empty logits")
	}
}

func TestSatHelpers(t *testing.T) {
	if got := Sat(5, 3, -3); got != 3 {
		t.Fatalf("expected sat max clamp, got=%f", got)
	}
	if got := Sat(-5, 3, -3); got != -3 {
		t.Fatalf("expected sat min clamp, got=%f", got)
	}
	if got := SaturationWithSpread(5, -2); got != 2 {
		t.Fatalf("expected spread clamp, got=%f", got)
	}
}

func TestAvgAndStd(t *testing.T) {
	avg, err := Avg([]float64{1, 2, 3})
	if err != nil {
		t.Fatalf("avg failed: %v", err)
	}
	if math.Abs(avg-2) > 1e-12 {
		t.Fatalf("unexpected avg: %f", avg)
	}
	std, err := Std([]float64{1, 2, 3})
	if err != nil {
		t.Fatalf("std failed: %v", err)
	}
	if math.Abs(std-math.Sqrt(2.0/3.0)) > 1e-12 {
		t.Fatalf("unexpected std: %f", std)
	}
	if _, err := Avg(nil); err == nil {
		t.Fatal("expected avg empty error")
	}
}

func TestNegLogProbAndEntropy(t *testing.T) {
	if got := NegLogProb(1); got != 0 {
		t.Fatalf("expected zero loss for certain outcome, got=%f", got)
	}
	if got := NegLogProb(0); math.IsInf(got, 1) || got <= 0 {
		t.Fatalf("expected finite positive loss for impossible outcome, got=%f", got)
	}
	if got := Entropy([]float64{1, 0, 0}); got != 0 {
		t.Fatalf("expected zero entropy for crisp distribution, got=%f", got)
	}
	if got := Entropy([]float64{0.5, 0.5}); math.Abs(got-math.Ln2) > 1e-12 {
		t.Fatalf("unexpected entropy: %f", got)
	}
}
