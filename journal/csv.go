package journal

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Layout selects the ledger CSV columns.
type Layout int

const (
	// Plain is used by strategies that carry no sizing diagnostics.
	Plain Layout = iota
	// Diagnostic adds the band sizing snapshot columns.
	Diagnostic
)

// DateLayout is the timestamp format of exported rows.
const DateLayout = "2006-01-02 15:04:05"

var (
	plainHeader      = []string{"Date", "IsBuy", "Price", "Size", "Value", "PnL", "Closed"}
	diagnosticHeader = []string{"Date", "IsBuy", "Price", "Size", "Value", "PnL",
		"x", "ema200", "atr", "y", "TargetPosition", "CurrentPosition", "Closed"}
	equityHeader = []string{"time", "cash", "position", "value"}
)

func (l Layout) String() string {
	if l == Diagnostic {
		return "diagnostic"
	}
	return "plain"
}

// Header returns the CSV header of the layout.
func (l Layout) Header() []string {
	if l == Diagnostic {
		return append([]string(nil), diagnosticHeader...)
	}
	return append([]string(nil), plainHeader...)
}

// ParseLayout maps "plain" or "diagnostic" onto a Layout.
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "plain":
		return Plain, nil
	case "diagnostic", "diag":
		return Diagnostic, nil
	default:
		return Plain, fmt.Errorf("journal: unknown layout %q", s)
	}
}

// Row renders f in the given layout. Missing diagnostics render as empty
// strings.
func (f Fill) Row(layout Layout) []string {
	row := []string{
		f.Time.Format(DateLayout),
		strconv.FormatBool(f.IsBuy),
		num(f.Price),
		num(f.Size),
		num(f.Value),
		num(f.PnL),
	}
	if layout == Diagnostic {
		cols := make([]string, 6)
		if d, err := f.Diagnostics.Take(); err == nil {
			cols = []string{
				num(d.Price),
				num(d.EMA),
				num(d.ATR),
				num(d.Exposure),
				num(d.TargetPosition),
				num(d.CurrentPosition),
			}
		}
		row = append(row, cols...)
	}
	return append(row, strconv.FormatBool(f.Closed))
}

// WriteCSV writes the header and one row per fill.
func (l *Ledger) WriteCSV(w io.Writer, layout Layout) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(layout.Header()); err != nil {
		return err
	}
	for _, f := range l.fills {
		if err := cw.Write(f.Row(layout)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportCSV writes the ledger to path, creating parent directories. The
// file only appears once it has been completely written.
func (l *Ledger) ExportCSV(path string, layout Layout) error {
	return writeAtomic(path, func(w io.Writer) error {
		return l.WriteCSV(w, layout)
	})
}

// WriteEquityCSV writes an equity curve to path.
func WriteEquityCSV(path string, curve []EquitySnapshot) error {
	return writeAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(equityHeader); err != nil {
			return err
		}
		for _, s := range curve {
			if err := cw.Write([]string{
				s.Time.Format(DateLayout),
				num(s.Cash),
				num(s.Position),
				num(s.Value),
			}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

func writeAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("journal: create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("journal: export %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("journal: export %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("journal: export %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("journal: export %s: %w", path, err)
	}
	return nil
}

func num(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}
