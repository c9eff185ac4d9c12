package journal

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
	"time"
)

// Run summarizes one strategy run over one dataset.
type Run struct {
	RunID    string
	Created  time.Time
	Dataset  string
	Strategy string
	// Config is the serialized run configuration.
	Config []byte

	Start time.Time
	End   time.Time

	StartValue float64
	EndValue   float64

	TotalReturn  float64
	AnnualReturn float64
	MaxDrawdown  float64
	Sharpe       float64
	MAR          float64

	Fills       int
	Trades      int
	Wins        int
	Losses      int
	RealizedPnL float64
}

// WinRate returns wins over closed trades, or 0 with none.
func (r Run) WinRate() float64 {
	if r.Trades == 0 {
		return 0
	}
	return float64(r.Wins) / float64(r.Trades)
}

var runOrgFuncs = template.FuncMap{
	"pct": func(x float64) string { return fmt.Sprintf("%.2f%%", x*100) },
	"orTime": func(t time.Time) time.Time {
		if t.IsZero() {
			return time.Now()
		}
		return t
	},
}

var runOrg = template.Must(template.New("run").Funcs(runOrgFuncs).Parse(runOrgTemplate))

// FormatOrg renders the run as an Org-mode entry.
func (r Run) FormatOrg() (string, error) {
	var buf bytes.Buffer
	if err := runOrg.Execute(&buf, r); err != nil {
		return "", fmt.Errorf("journal: render run %s: %w", r.RunID, err)
	}
	return buf.String(), nil
}

// WriteOrg writes the Org-mode entry to path, creating parent directories.
func (r Run) WriteOrg(path string) error {
	s, err := r.FormatOrg()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("journal: create %s: %w", filepath.Dir(path), err)
	}
	return os.WriteFile(path, []byte(s), 0o644)
}

const runOrgTemplate = `* BACKTEST: {{.Strategy}} {{.Dataset}}
:PROPERTIES:
:RUN_ID:        {{.RunID}}
:STRATEGY:      {{.Strategy}}
:DATASET:       {{.Dataset}}
:START_DATE:    {{.Start.Format "2006-01-02"}}
:END_DATE:      {{.End.Format "2006-01-02"}}
:START_VALUE:   {{printf "%.2f" .StartValue}}
:END_VALUE:     {{printf "%.2f" .EndValue}}
:TOTAL_RETURN:  {{pct .TotalReturn}}
:ANNUAL_RETURN: {{pct .AnnualReturn}}
:MAX_DRAWDOWN:  {{pct .MaxDrawdown}}
:SHARPE:        {{printf "%.3f" .Sharpe}}
:MAR:           {{printf "%.3f" .MAR}}
:FILLS:         {{.Fills}}
:TRADES:        {{.Trades}}
:CREATED:       [{{(orTime .Created).Format "2006-01-02 Mon 15:04"}}]
:END:

** Performance Summary
- Realized PnL:  *{{printf "%.2f" .RealizedPnL}}*
- Total return:  *{{pct .TotalReturn}}*
- Max drawdown:  *{{pct .MaxDrawdown}}*
- Win rate:      *{{pct .WinRate}}*

** Trade Distribution
| Outcome | Count |
|---------+-------|
| Wins    | {{.Wins}} |
| Losses  | {{.Losses}} |
| Total   | {{.Trades}} |
{{- if .Config }}

** Configuration
#+begin_src yaml
{{printf "%s" .Config}}
#+end_src
{{- end }}
`
