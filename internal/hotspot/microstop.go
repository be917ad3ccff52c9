package hotspot

// DefaultMicroStopThreshold is the speed (km/h) below which a sample counts
// as a micro-stop.
const DefaultMicroStopThreshold = 5.0

// MicroStopDetector flags samples slower than a fixed threshold.
type MicroStopDetector struct {
	Threshold float64
}

// NewMicroStopDetector returns a detector for the given km/h threshold.
func NewMicroStopDetector(threshold float64) (*MicroStopDetector, error) {
	if threshold < 0 {
		return nil, &ConfigurationError{Field: "microstop_speed_threshold", Value: threshold, Reason: "must be non-negative"}
	}
	return &MicroStopDetector{Threshold: threshold}, nil
}

// Detect returns one flag per sample, aligned with input order: true iff
// speed < Threshold.
func (d *MicroStopDetector) Detect(samples []Sample) []bool {
	flags := make([]bool, len(samples))
	for i, s := range samples {
		flags[i] = s.Speed < d.Threshold
	}
	return flags
}
