package hotspot

import "strings"

// AlertReason is a bit set of alert criteria.
type AlertReason uint8

const (
	ReasonSize AlertReason = 1 << iota
	ReasonSpeed
)

// String renders the reason as "size", "speed" or "size+speed".
func (r AlertReason) String() string {
	var parts []string
	if r&ReasonSize != 0 {
		parts = append(parts, "size")
	}
	if r&ReasonSpeed != 0 {
		parts = append(parts, "speed")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// MarshalText lets the reason serialize as its string form.
func (r AlertReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// AlertConfig selects which clusters warrant a notification.
type AlertConfig struct {
	MinSize            int
	SpeedFilterEnabled bool
	SpeedThreshold     float64 // km/h, compared against the cluster mean speed
}

// DefaultAlertConfig mirrors the defaults of the upload form.
func DefaultAlertConfig() AlertConfig {
	return AlertConfig{
		MinSize:            10,
		SpeedFilterEnabled: false,
		SpeedThreshold:     DefaultMicroStopThreshold,
	}
}

// Validate rejects a min size below 1 and a negative speed threshold.
func (c AlertConfig) Validate() error {
	if c.MinSize < 1 {
		return &ConfigurationError{Field: "alert_min_cluster_size", Value: c.MinSize, Reason: "must be at least 1"}
	}
	if c.SpeedThreshold < 0 {
		return &ConfigurationError{Field: "alert_speed_threshold", Value: c.SpeedThreshold, Reason: "must be non-negative"}
	}
	return nil
}

// AlertDecision records the outcome for one cluster. For a triggered
// decision Reason holds the criteria that were met; otherwise it holds the
// criteria that failed.
type AlertDecision struct {
	ClusterID int         `json:"cluster_id"`
	Triggered bool        `json:"triggered"`
	Reason    AlertReason `json:"reason"`
}

// Decide evaluates a single summary.
func (c AlertConfig) Decide(s ClusterSummary) AlertDecision {
	var met, failed AlertReason
	if s.Size >= c.MinSize {
		met |= ReasonSize
	} else {
		failed |= ReasonSize
	}
	if c.SpeedFilterEnabled {
		if s.MeanSpeed < c.SpeedThreshold {
			met |= ReasonSpeed
		} else {
			failed |= ReasonSpeed
		}
	}
	if failed != 0 {
		return AlertDecision{ClusterID: s.ClusterID, Triggered: false, Reason: failed}
	}
	return AlertDecision{ClusterID: s.ClusterID, Triggered: true, Reason: met}
}

// Evaluate returns one decision per summary, in summary order.
func (c AlertConfig) Evaluate(summaries []ClusterSummary) []AlertDecision {
	decisions := make([]AlertDecision, len(summaries))
	for i, s := range summaries {
		decisions[i] = c.Decide(s)
	}
	return decisions
}

// Matches returns the summaries that trigger an alert, preserving order.
func (c AlertConfig) Matches(summaries []ClusterSummary) []ClusterSummary {
	matched := []ClusterSummary{}
	for _, s := range summaries {
		if c.Decide(s).Triggered {
			matched = append(matched, s)
		}
	}
	return matched
}
