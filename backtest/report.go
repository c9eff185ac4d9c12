package backtest

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/moznion/go-optional"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	numStyle    = cellStyle.Align(lipgloss.Right)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

var reportHeaders = []string{
	"Dataset", "Strategy", "Total", "Annual", "MaxDD", "Sharpe", "MAR", "Trades", "Excess vs B&H",
}

// Report collects the results of a batch.
type Report struct {
	Results  []Result
	Failures []Failure
}

// Benchmark returns the buy-and-hold result for dataset, if it ran.
func (r *Report) Benchmark(dataset string) optional.Option[Result] {
	for _, res := range r.Results {
		if res.Dataset == dataset && res.Strategy == Benchmark {
			return optional.Some(res)
		}
	}
	return optional.None[Result]()
}

// Excess is res's total return minus buy-and-hold's on the same dataset.
// It is None for the benchmark itself or when the benchmark did not run.
func (r *Report) Excess(res Result) optional.Option[float64] {
	if res.Strategy == Benchmark {
		return optional.None[float64]()
	}
	bench, err := r.Benchmark(res.Dataset).Take()
	if err != nil {
		return optional.None[float64]()
	}
	return optional.Some(res.Stats.TotalReturn - bench.Stats.TotalReturn)
}

// Rows returns the table body, one row per result.
func (r *Report) Rows() [][]string {
	rows := make([][]string, 0, len(r.Results))
	for _, res := range r.Results {
		st := res.Stats
		excess := "-"
		if x, err := r.Excess(res).Take(); err == nil {
			excess = pct(x)
		}
		rows = append(rows, []string{
			res.Dataset,
			res.Strategy,
			pct(st.TotalReturn),
			pct(st.AnnualReturn),
			pct(st.MaxDrawdown),
			strconv.FormatFloat(st.Sharpe, 'f', 3, 64),
			strconv.FormatFloat(st.MAR, 'f', 3, 64),
			strconv.Itoa(st.Trades),
			excess,
		})
	}
	return rows
}

// Table renders the comparison table.
func (r *Report) Table() *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers(reportHeaders...).
		Rows(r.Rows()...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col < 2:
				return cellStyle
			default:
				return numStyle
			}
		})
}

// Write prints the table followed by any failures.
func (r *Report) Write(w io.Writer) error {
	if _, err := fmt.Fprintln(w, r.Table().String()); err != nil {
		return err
	}
	for _, f := range r.Failures {
		if _, err := fmt.Fprintln(w, failStyle.Render("failed: "+f.Error())); err != nil {
			return err
		}
	}
	return nil
}

func pct(x float64) string {
	return strconv.FormatFloat(x*100, 'f', 2, 64) + "%"
}
