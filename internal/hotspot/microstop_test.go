package hotspot

import (
	"errors"
	"testing"
)

func TestMicroStopDetector_Detect(t *testing.T) {
	tests := []struct {
		name      string
		threshold float64
		speeds    []float64
		want      []bool
	}{
		{"default threshold", DefaultMicroStopThreshold, []float64{0, 4.99, 5, 40}, []bool{true, true, false, false}},
		{"alternate threshold", 10, []float64{5, 9.9, 10, 11}, []bool{true, true, false, false}},
		{"zero threshold flags nothing", 0, []float64{0, 1}, []bool{false, false}},
		{"empty batch", 5, nil, []bool{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewMicroStopDetector(tt.threshold)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			samples := make([]Sample, len(tt.speeds))
			for i, s := range tt.speeds {
				samples[i] = Sample{Row: i + 1, Speed: s}
			}
			got := d.Detect(samples)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d flags, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("flag[%d] = %v, want %v (speed %v)", i, got[i], tt.want[i], tt.speeds[i])
				}
			}
		})
	}
}

func TestNewMicroStopDetector_NegativeThreshold(t *testing.T) {
	_, err := NewMicroStopDetector(-1)
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}
