// Package notify delivers hot spot alerts. It formats one message per
// matched cluster, sends it through a Sender and aggregates the outcome.
// Delivery failures never feed back into the analysis.
package notify

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/banshee-data/congestion.report/internal/hotspot"
)

// DefaultMessageTemplate is the alert text used when none is configured.
const DefaultMessageTemplate = `Congestion alert: cluster #{{.ClusterID}} detected with {{.Size}} points. ` +
	`Approx centre: ({{printf "%.5f" .CentroidLat}}, {{printf "%.5f" .CentroidLon}})` +
	`{{if .IncludeSpeed}}, mean speed: {{printf "%.1f" .MeanSpeed}} km/h{{end}}`

// MessageData is the template input for one cluster.
type MessageData struct {
	hotspot.ClusterSummary
	IncludeSpeed bool
}

// ParseTemplate parses a message template; an empty text selects
// DefaultMessageTemplate.
func ParseTemplate(text string) (*template.Template, error) {
	if strings.TrimSpace(text) == "" {
		text = DefaultMessageTemplate
	}
	tmpl, err := template.New("alert").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("invalid message template: %w", err)
	}
	return tmpl, nil
}

// FormatMessage renders the alert text for one cluster.
func FormatMessage(tmpl *template.Template, s hotspot.ClusterSummary, includeSpeed bool) (string, error) {
	var b strings.Builder
	if err := tmpl.Execute(&b, MessageData{ClusterSummary: s, IncludeSpeed: includeSpeed}); err != nil {
		return "", fmt.Errorf("failed to render message for cluster %d: %w", s.ClusterID, err)
	}
	return b.String(), nil
}
