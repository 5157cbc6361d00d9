package features

import (
	"errors"
	"math"
	"testing"

	"trendcast/internal/common"
)

func TestBuild_PctChangeLags(t *testing.T) {
	t.Parallel()

	raw := []float64{100, 110, 99, 99, 108.9}
	spec := Spec{Name: "pct_change_lags", Lags: 3}

	got, err := Build(raw, 5, spec)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	want := []float64{
		(108.9 - 99) / 99.0,
		(99 - 99) / 99.0,
		(99 - 110) / 110.0,
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d features, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("feature %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestBuild_Deterministic(t *testing.T) {
	t.Parallel()

	raw := []float64{2000.5, 2010.25, 1999.75, 2050, 2049.5}
	spec := Spec{Name: "log_return_lags", Lags: 4}

	first, err := Build(raw, 5, spec)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Build(raw, 5, spec)
		if err != nil {
			t.Fatalf("Build returned error: %v", err)
		}
		for j := range first {
			if math.Float64bits(first[j]) != math.Float64bits(again[j]) {
				t.Fatalf("run %d feature %d differs: %v vs %v", i, j, first[j], again[j])
			}
		}
	}
}

func TestBuild_Identity(t *testing.T) {
	t.Parallel()

	raw := []float64{-1, 0, 1}
	got, err := Build(raw, 3, Spec{Name: "identity"})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	raw[0] = 42
	if got[0] != -1 {
		t.Error("identity transform must not alias its input")
	}
}

func TestBuild_Rejects(t *testing.T) {
	t.Parallel()

	pct := Spec{Name: "pct_change_lags", Lags: 3}
	tests := []struct {
		name string
		raw  []float64
		spec Spec
	}{
		{"short series", []float64{1, 2, 3, 4}, pct},
		{"long series", []float64{1, 2, 3, 4, 5, 6}, pct},
		{"empty series", []float64{}, pct},
		{"nan", []float64{1, 2, math.NaN(), 4, 5}, pct},
		{"inf", []float64{1, 2, 3, math.Inf(1), 5}, pct},
		{"zero price", []float64{1, 0, 3, 4, 5}, pct},
		{"negative price", []float64{1, 2, 3, 4, -5}, Spec{Name: "log_return_lags", Lags: 2}},
		{"unknown transform", []float64{1, 2, 3, 4, 5}, Spec{Name: "fourier"}},
		{"too many lags", []float64{1, 2, 3, 4, 5}, Spec{Name: "pct_change_lags", Lags: 5}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Build(tt.raw, 5, tt.spec)
			if !errors.Is(err, common.ErrInvalidInputShape) {
				t.Errorf("expected ErrInvalidInputShape, got %v", err)
			}
		})
	}
}

func TestOutputLength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		spec    Spec
		input   int
		want    int
		wantErr bool
	}{
		{"identity", Spec{Name: "identity"}, 5, 5, false},
		{"pct change", Spec{Name: "pct_change_lags", Lags: 3}, 5, 3, false},
		{"max lags", Spec{Name: "log_return_lags", Lags: 4}, 5, 4, false},
		{"zero lags", Spec{Name: "pct_change_lags"}, 5, 0, true},
		{"unknown", Spec{Name: "wavelet"}, 5, 0, true},
		{"zero input", Spec{Name: "identity"}, 0, 0, true},
	}

	for _, tt := range tests {
		got, err := OutputLength(tt.spec, tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: expected error %v, got %v", tt.name, tt.wantErr, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.name, tt.want, got)
		}
	}
}

func TestNames(t *testing.T) {
	names := Names()
	want := []string{"identity", "log_return_lags", "pct_change_lags"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("expected %v, got %v", want, names)
		}
	}
}
