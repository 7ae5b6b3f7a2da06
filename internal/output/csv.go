package output

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/san-kum/nodesim/internal/node"
)

var csvHeader = []string{"time", "node", "variable", "value"}

// CSVSink writes selected outputs in long format, one row per node,
// variable and step.
type CSVSink struct {
	w      *csv.Writer
	c      io.Closer
	sel    *Selection
	header bool
}

func NewCSVSink(w io.Writer, sel *Selection) *CSVSink {
	s := &CSVSink{w: csv.NewWriter(w), sel: sel}
	if c, ok := w.(io.Closer); ok {
		s.c = c
	}
	return s
}

// CreateCSV creates path and its parent directories.
func CreateCSV(path string, sel *Selection) (*CSVSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return NewCSVSink(f, sel), nil
}

func (s *CSVSink) Output(_ int, t time.Time, n *node.Node) error {
	if !s.header {
		if err := s.w.Write(csvHeader); err != nil {
			return err
		}
		s.header = true
	}
	ts := t.UTC().Format(TimeLayout)
	for _, r := range s.sel.rows(n) {
		if err := s.w.Write([]string{ts, n.ID(), r.variable, strconv.FormatFloat(r.value, 'g', -1, 64)}); err != nil {
			return err
		}
	}
	return nil
}

func (s *CSVSink) Close() error {
	s.w.Flush()
	err := s.w.Error()
	if s.c != nil {
		err = errors.Join(err, s.c.Close())
	}
	return err
}

// Point is one value of a series.
type Point struct {
	Time  time.Time
	Value float64
}

// ReadCSVSeries returns the values of one variable of one node, in file
// order, from a file written by CSVSink.
func ReadCSVSeries(path, id, variable string) ([]Point, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = len(csvHeader)

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	var points []Point
	for i, rec := range records[1:] {
		if rec[1] != id || rec[2] != variable {
			continue
		}
		t, err := time.Parse(TimeLayout, rec[0])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, err)
		}
		v, err := strconv.ParseFloat(rec[3], 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, err)
		}
		points = append(points, Point{Time: t, Value: v})
	}
	return points, nil
}
