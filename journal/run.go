package journal

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"text/template"
	"time"
)

// Run is the summary of one backtest.
type Run struct {
	ID      string
	Created time.Time
	Dataset string // candles file
	Signals string // signals file

	Start time.Time
	End   time.Time

	InitialCapital float64
	FinalValue     float64
	TotalReturn    float64 // fraction
	MaxDrawdown    float64 // fraction of peak value
	RealizedPnL    float64

	Trades   int // closed positions
	Wins     int
	Losses   int
	Rejected int // transactions refused by the ledger

	Config []byte // YAML of the configuration used

	Notes []string
}

func (r Run) WinRate() float64 {
	if r.Trades == 0 {
		return 0
	}
	return float64(r.Wins) / float64(r.Trades)
}

func (r Run) NetPnL() float64 { return r.FinalValue - r.InitialCapital }

var runOrgFuncs = template.FuncMap{
	"pct": func(x float64) string { return fmt.Sprintf("%.2f", x*100) },
	"orTime": func(t time.Time) time.Time {
		if t.IsZero() {
			return time.Now()
		}
		return t
	},
}

// RenderOrg writes the run as an Org-mode document.
func (r Run) RenderOrg(w io.Writer) error {
	t, err := template.New("run").Funcs(runOrgFuncs).Parse(RunOrgTemplate)
	if err != nil {
		return fmt.Errorf("parse run template: %w", err)
	}
	if err := t.Execute(w, r); err != nil {
		return fmt.Errorf("render run %s: %w", r.ID, err)
	}
	return nil
}

// WriteOrg renders the run to a file at path.
func (r Run) WriteOrg(path string) error {
	buf := new(bytes.Buffer)
	if err := r.RenderOrg(buf); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

const RunOrgTemplate = `* BACKTEST: {{if .Dataset}}{{.Dataset}}{{else}}(dataset?){{end}}
:PROPERTIES:
:RUN_ID:      {{.ID}}
:DATASET:     {{.Dataset}}
:SIGNALS:     {{.Signals}}
:START_DATE:  {{.Start.Format "2006-01-02"}}
:END_DATE:    {{.End.Format "2006-01-02"}}
:START_BAL:   {{printf "%.2f" .InitialCapital}}
:END_BAL:     {{printf "%.2f" .FinalValue}}
:NET_PL:      {{printf "%.2f" .NetPnL}}
:RETURN_PCT:  {{pct .TotalReturn}}
:MAX_DD_PCT:  {{pct .MaxDrawdown}}
:TRADES:      {{.Trades}}
:WINS:        {{.Wins}}
:LOSSES:      {{.Losses}}
:REJECTED:    {{.Rejected}}
:CREATED:     [{{(orTime .Created).Format "2006-01-02 Mon 15:04"}}]
:END:

** Performance Summary
- Net P/L:       *{{printf "%.2f" .NetPnL}}*
- Realized P/L:  *{{printf "%.2f" .RealizedPnL}}*
- Return:        *{{pct .TotalReturn}}%*
- Max Drawdown:  *{{pct .MaxDrawdown}}%*
- Win Rate:      *{{pct .WinRate}}%*

** Trade Distribution
| Outcome  | Count |
|----------+-------|
| Wins     | {{.Wins}} |
| Losses   | {{.Losses}} |
| Total    | {{.Trades}} |
| Rejected | {{.Rejected}} |
{{- if .Notes }}

** Observations
{{- range .Notes }}
- {{.}}
{{- end }}
{{- end }}
`
