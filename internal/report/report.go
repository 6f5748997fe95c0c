package report

import (
	"encoding/json"
	"fmt"
	"io"
	"text/template"
	"time"
)

// Item state names as recorded in outcomes.
const (
	StateEmitted = "emitted"
	StateSkipped = "skipped"
)

// ItemOutcome is the terminal result of one input item.
type ItemOutcome struct {
	Input      string        `json:"input"`
	SearchTerm string        `json:"searchTerm"`
	State      string        `json:"state"` // "emitted" or "skipped"
	Cause      string        `json:"cause,omitempty"`
	Duration   time.Duration `json:"duration"`
	FinishedAt time.Time     `json:"finishedAt"`
}

// Summary contains aggregated results about one run.
type Summary struct {
	TotalItems     int
	Emitted        int
	Skipped        int
	SkippedByCause map[string]int
	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
}

// GenerateSummary aggregates the item outcomes of a run.
func GenerateSummary(outcomes []ItemOutcome) Summary {
	s := Summary{
		SkippedByCause: make(map[string]int),
	}

	if len(outcomes) == 0 {
		return s
	}

	s.StartTime = outcomes[0].FinishedAt.Add(-outcomes[0].Duration)
	s.EndTime = outcomes[0].FinishedAt

	for _, o := range outcomes {
		s.TotalItems++
		switch o.State {
		case StateEmitted:
			s.Emitted++
		default:
			s.Skipped++
			cause := o.Cause
			if cause == "" {
				cause = "unknown"
			}
			s.SkippedByCause[cause]++
		}

		if started := o.FinishedAt.Add(-o.Duration); started.Before(s.StartTime) {
			s.StartTime = started
		}
		if o.FinishedAt.After(s.EndTime) {
			s.EndTime = o.FinishedAt
		}
	}

	s.Duration = s.EndTime.Sub(s.StartTime)
	return s
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("report: encode summary: %w", err)
	}
	return nil
}

// WriteText writes a human-readable run summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	const textTmpl = `Trends Run Summary
------------------
Time:       {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Duration:   {{.Duration}}
Items:      {{.TotalItems}}
Emitted:    {{.Emitted}}
Skipped:    {{.Skipped}}
{{- range $cause, $count := .SkippedByCause}}
  {{$cause}}: {{$count}}
{{- else}}
  (none)
{{- end}}
`

	t, err := template.New("textReport").Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("report: parse template: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("report: render summary: %w", err)
	}

	return nil
}
