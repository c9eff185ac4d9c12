package market

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/moznion/go-optional"
)

// DateFormatUnix selects unix-seconds timestamps instead of a layout.
const DateFormatUnix = "unix"

// Columns maps CSV column positions onto bar fields. Volume < 0 means the file
// carries no volume column.
type Columns struct {
	Time   int
	Open   int
	High   int
	Low    int
	Close  int
	Volume int
}

// DefaultColumns is datetime,open,high,low,close,volume. When it is used
// because CSVOptions.Columns is zero, the volume column may be absent.
var DefaultColumns = Columns{Time: 0, Open: 1, High: 2, Low: 3, Close: 4, Volume: 5}

// CSVOptions controls how a bar file is parsed.
type CSVOptions struct {
	// DateFormat is a strftime pattern ("%Y/%m/%d %H:%M"), a Go layout,
	// or DateFormatUnix. Empty means RFC3339.
	DateFormat string
	Columns    Columns
	Location   *time.Location

	From optional.Option[time.Time]
	To   optional.Option[time.Time]
}

// LoadCSV reads a bar series from path.
func LoadCSV(name, path string, opts CSVOptions) (*Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("market: open %s: %w", path, err)
	}
	defer f.Close()

	s, err := ReadCSV(name, f, opts)
	if err != nil {
		return nil, fmt.Errorf("market: %s: %w", path, err)
	}
	return s, nil
}

// ReadCSV parses bars from r. A single leading header row is skipped. Blank
// rows are ignored; any other malformed row is an error.
func ReadCSV(name string, r io.Reader, opts CSVOptions) (*Series, error) {
	cols := opts.Columns
	optVolume := false
	if cols == (Columns{}) {
		cols = DefaultColumns
		optVolume = true
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	parse := timeParser(opts.DateFormat, loc)
	from := opts.From.TakeOr(time.Time{})
	to := opts.To.TakeOr(time.Time{})

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	s := &Series{Name: name}
	line := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if isBlank(row) {
			continue
		}
		if line == 1 && looksLikeHeader(row, cols) {
			continue
		}

		b, err := parseBar(row, cols, optVolume, parse)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if !from.IsZero() && b.Time.Before(from) {
			continue
		}
		if !to.IsZero() && !b.Time.Before(to) {
			continue
		}
		if err := s.Append(b); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
	}
	return s, nil
}

// parseBar converts one row. With optVolume set, a row that ends before the
// volume column yields a zero volume.
func parseBar(row []string, cols Columns, optVolume bool, parse func(string) (time.Time, error)) (Bar, error) {
	need := max(cols.Time, cols.Open, cols.High, cols.Low, cols.Close)
	if optVolume && cols.Volume >= len(row) {
		cols.Volume = -1
	}
	need = max(need, cols.Volume)
	if len(row) <= need {
		return Bar{}, fmt.Errorf("need %d columns, got %d", need+1, len(row))
	}

	t, err := parse(strings.TrimSpace(row[cols.Time]))
	if err != nil {
		return Bar{}, fmt.Errorf("bad time %q: %w", row[cols.Time], err)
	}

	var b Bar
	b.Time = t
	fields := []struct {
		name string
		idx  int
		dst  *float64
	}{
		{"open", cols.Open, &b.Open},
		{"high", cols.High, &b.High},
		{"low", cols.Low, &b.Low},
		{"close", cols.Close, &b.Close},
		{"volume", cols.Volume, &b.Volume},
	}
	for _, fl := range fields {
		if fl.idx < 0 {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(row[fl.idx]), 64)
		if err != nil {
			return Bar{}, fmt.Errorf("bad %s %q: %w", fl.name, row[fl.idx], err)
		}
		*fl.dst = v
	}
	return b, nil
}

func timeParser(format string, loc *time.Location) func(string) (time.Time, error) {
	switch format {
	case DateFormatUnix:
		return func(s string) (time.Time, error) {
			sec, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return time.Time{}, err
			}
			return time.Unix(sec, 0).UTC(), nil
		}
	case "":
		return func(s string) (time.Time, error) {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return time.Parse(time.RFC3339Nano, s)
			}
			return t, nil
		}
	}

	layout := Layout(format)
	// %z accepts both +0000 and +00:00.
	alt := strings.Replace(layout, "-0700", "-07:00", 1)
	return func(s string) (time.Time, error) {
		t, err := time.ParseInLocation(layout, s, loc)
		if err != nil && alt != layout {
			if t2, err2 := time.ParseInLocation(alt, s, loc); err2 == nil {
				return t2, nil
			}
		}
		return t, err
	}
}

var strftime = map[byte]string{
	'Y': "2006",
	'y': "06",
	'm': "01",
	'd': "02",
	'H': "15",
	'I': "03",
	'p': "PM",
	'M': "04",
	'S': "05",
	'f': "000000",
	'z': "-0700",
	'Z': "MST",
	'b': "Jan",
	'B': "January",
	'a': "Mon",
	'A': "Monday",
	'%': "%",
}

// Layout converts a strftime pattern into a Go time layout. Strings without a
// '%' are assumed to already be Go layouts and are returned unchanged.
func Layout(format string) string {
	if !strings.Contains(format, "%") {
		return format
	}
	var sb strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' || i+1 >= len(format) {
			sb.WriteByte(c)
			continue
		}
		if v, ok := strftime[format[i+1]]; ok {
			sb.WriteString(v)
			i++
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func isBlank(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func looksLikeHeader(row []string, cols Columns) bool {
	if cols.Close >= len(row) {
		return false
	}
	_, err := strconv.ParseFloat(strings.TrimSpace(row[cols.Close]), 64)
	return err != nil
}
