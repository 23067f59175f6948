package replay

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/sessiontrader/market"
)

// Row is one closed bar and, when the dataset has one, the quote at its
// close.
type Row struct {
	Bar   market.Bar
	Quote market.Quote
}

// BarFeed yields rows in time order. Next returns ok=false, err=nil at EOF.
type BarFeed interface {
	Next() (Row, bool, error)
	Close() error
}

// CSVFeed reads time,open,high,low,close,volume[,bid,ask]. A header row is
// allowed. Times are RFC3339, "2006-01-02 15:04:05" in UTC, or unix
// seconds.
type CSVFeed struct {
	c    io.Closer
	r    *csv.Reader
	line int
	last time.Time
}

func NewCSVFeed(r io.Reader) *CSVFeed {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	f := &CSVFeed{r: cr}
	if c, ok := r.(io.Closer); ok {
		f.c = c
	}
	return f
}

// OpenCSV opens a bar file.
func OpenCSV(path string) (*CSVFeed, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return NewCSVFeed(fh), nil
}

func (f *CSVFeed) Close() error {
	if f.c != nil {
		return f.c.Close()
	}
	return nil
}

func (f *CSVFeed) Next() (Row, bool, error) {
	for {
		rec, err := f.r.Read()
		if err == io.EOF {
			return Row{}, false, nil
		}
		if err != nil {
			return Row{}, false, err
		}
		f.line++
		if len(rec) == 0 || (len(rec) == 1 && strings.TrimSpace(rec[0]) == "") {
			continue
		}
		if f.line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "time") {
			continue
		}

		row, err := parseRow(rec)
		if err != nil {
			return Row{}, false, fmt.Errorf("line %d: %w", f.line, err)
		}
		if !f.last.IsZero() && !row.Bar.Time.After(f.last) {
			return Row{}, false, fmt.Errorf("line %d: bar %s is not after %s",
				f.line, row.Bar.Time.Format(time.RFC3339), f.last.Format(time.RFC3339))
		}
		f.last = row.Bar.Time
		return row, true, nil
	}
}

func parseRow(rec []string) (Row, error) {
	if len(rec) != 6 && len(rec) != 8 {
		return Row{}, fmt.Errorf("want 6 or 8 columns, got %d", len(rec))
	}
	t, err := parseTime(strings.TrimSpace(rec[0]))
	if err != nil {
		return Row{}, err
	}
	v := make([]float64, len(rec)-1)
	for i, s := range rec[1:] {
		if v[i], err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return Row{}, fmt.Errorf("column %d: %w", i+2, err)
		}
	}

	row := Row{Bar: market.Bar{Time: t, Open: v[0], High: v[1], Low: v[2], Close: v[3], Volume: v[4]}}
	b := row.Bar
	if b.High < b.Low || b.Open > b.High || b.Open < b.Low || b.Close > b.High || b.Close < b.Low {
		return Row{}, fmt.Errorf("inconsistent bar o=%g h=%g l=%g c=%g", b.Open, b.High, b.Low, b.Close)
	}
	if len(v) == 7 {
		row.Quote = market.Quote{Bid: v[5], Ask: v[6]}
		if row.Quote.Ask < row.Quote.Bid {
			return Row{}, fmt.Errorf("crossed quote %g/%g", row.Quote.Bid, row.Quote.Ask)
		}
	}
	return row, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.UTC); err == nil {
		return t, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(n, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("bad time %q", s)
}
