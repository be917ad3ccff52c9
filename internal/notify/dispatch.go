package notify

import (
	"context"
	"fmt"
	"text/template"

	"github.com/banshee-data/congestion.report/internal/hotspot"
	"github.com/banshee-data/congestion.report/internal/monitoring"
)

// Sender delivers one text message and returns a provider message id.
type Sender interface {
	Send(ctx context.Context, to, body string) (string, error)
}

// DeliveryError reports a failed delivery for one cluster.
type DeliveryError struct {
	ClusterID int
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("notification for cluster %d failed: %v", e.ClusterID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// SendResult is the outcome for a single cluster.
type SendResult struct {
	ClusterID int    `json:"cluster_id"`
	Message   string `json:"message"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
	Err       error  `json:"-"`
}

// Report aggregates a dispatch.
type Report struct {
	Sent    int          `json:"sent"`
	Failed  int          `json:"failed"`
	Results []SendResult `json:"results"`
}

// Errors returns the delivery errors in cluster order.
func (r Report) Errors() []error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	return errs
}

// Summary is a one-line user-facing outcome.
func (r Report) Summary() string {
	if r.Failed == 0 {
		return fmt.Sprintf("SMS sent for %d cluster(s) meeting the criteria", r.Sent)
	}
	return fmt.Sprintf("SMS sent for %d cluster(s), %d failed", r.Sent, r.Failed)
}

// Dispatcher sends one alert per matched cluster.
type Dispatcher struct {
	Sender       Sender
	To           string
	Template     *template.Template
	IncludeSpeed bool // append the mean speed, normally when the speed filter is on
}

// NewDispatcher builds a dispatcher with the default template.
func NewDispatcher(sender Sender, to string, includeSpeed bool) (*Dispatcher, error) {
	tmpl, err := ParseTemplate("")
	if err != nil {
		return nil, err
	}
	return &Dispatcher{Sender: sender, To: to, Template: tmpl, IncludeSpeed: includeSpeed}, nil
}

// Dispatch attempts every alert, continuing past failures, and reports the
// per-cluster results. It stops early only if ctx is cancelled.
func (d *Dispatcher) Dispatch(ctx context.Context, alerts []hotspot.ClusterSummary) Report {
	report := Report{Results: make([]SendResult, 0, len(alerts))}
	for _, s := range alerts {
		res := SendResult{ClusterID: s.ClusterID}

		body, err := FormatMessage(d.Template, s, d.IncludeSpeed)
		if err == nil {
			res.Message = body
			if err = ctx.Err(); err == nil {
				res.MessageID, err = d.Sender.Send(ctx, d.To, body)
			}
		}

		if err != nil {
			res.Err = &DeliveryError{ClusterID: s.ClusterID, Err: err}
			res.Error = res.Err.Error()
			report.Failed++
			monitoring.Logf("notify: %v", res.Err)
		} else {
			report.Sent++
		}
		report.Results = append(report.Results, res)
	}
	return report
}

// LogSender writes messages to the diagnostic log instead of sending them.
type LogSender struct{}

// Send logs the message and returns a synthetic id.
func (LogSender) Send(_ context.Context, to, body string) (string, error) {
	monitoring.Logf("notify (dry run) to=%q: %s", to, body)
	return "dry-run", nil
}
