package forcing

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/san-kum/nodesim/internal/dynamo"
	"github.com/san-kum/nodesim/internal/logging"
)

// Record holds the values of every location of one variable. It covers the
// interval (end of previous record, End].
type Record struct {
	End    time.Time
	Values []float64
}

type variable struct {
	name      string
	locations []string
	locIndex  map[string]int
	records   []Record
	offset    int
	active    int
}

// Series is a Collection backed by in-memory records per variable.
type Series struct {
	vars   []*variable
	byName map[string]*variable
	buf    []float64
	log    *slog.Logger
}

func NewSeries() *Series {
	return &Series{
		byName: make(map[string]*variable),
		log:    logging.New("forcing"),
	}
}

// Add registers a variable. Records must be sorted by strictly increasing
// end time and carry one value per location.
func (s *Series) Add(name string, locations []string, records []Record) error {
	if _, ok := s.byName[name]; ok {
		return fmt.Errorf("%w: forcing variable %q", dynamo.ErrDuplicateID, name)
	}
	if len(records) == 0 {
		return fmt.Errorf("forcing variable %q: no records", name)
	}
	v := &variable{
		name:      name,
		locations: append([]string(nil), locations...),
		locIndex:  make(map[string]int, len(locations)),
		records:   records,
		offset:    len(s.buf),
	}
	for i, loc := range locations {
		if _, ok := v.locIndex[loc]; ok {
			return fmt.Errorf("%w: location %q of forcing variable %q", dynamo.ErrDuplicateID, loc, name)
		}
		v.locIndex[loc] = i
	}
	for i, r := range records {
		if len(r.Values) != len(locations) {
			return fmt.Errorf("forcing variable %q: record %d has %d values, want %d", name, i, len(r.Values), len(locations))
		}
		if i > 0 && !r.End.After(records[i-1].End) {
			return fmt.Errorf("forcing variable %q: record %d not after record %d", name, i, i-1)
		}
	}

	s.buf = append(s.buf, make([]float64, len(locations))...)
	s.vars = append(s.vars, v)
	s.byName[name] = v
	return nil
}

// LoadCSV reads a table with header "end,<location>..." and RFC3339 end
// times and registers it under the given variable name.
func (s *Series) LoadCSV(name string, r io.Reader) error {
	locations, records, err := ReadCSV(r)
	if err != nil {
		return fmt.Errorf("forcing variable %q: %w", name, err)
	}
	return s.Add(name, locations, records)
}

func ReadCSV(r io.Reader) ([]string, []Record, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < 2 || strings.ToLower(header[0]) != "end" {
		return nil, nil, fmt.Errorf("header must start with \"end\" and name at least one location")
	}
	locations := header[1:]

	var records []Record
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line, err)
		}
		end, err := time.Parse(time.RFC3339, row[0])
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line, err)
		}
		values := make([]float64, len(locations))
		for i := range locations {
			values[i], err = strconv.ParseFloat(row[i+1], 64)
			if err != nil {
				return nil, nil, fmt.Errorf("line %d, location %s: %w", line, locations[i], err)
			}
		}
		records = append(records, Record{End: end, Values: values})
	}
	return locations, records, nil
}

func (s *Series) VariableNames() []string {
	names := make([]string, len(s.vars))
	for i, v := range s.vars {
		names[i] = v.name
	}
	sort.Strings(names)
	return names
}

func (s *Series) LocationsOf(name string) ([]string, error) {
	v, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: forcing variable %q", dynamo.ErrUnknownVariable, name)
	}
	return append([]string(nil), v.locations...), nil
}

func (s *Series) ValueAddress(name, location string) (Address, error) {
	v, ok := s.byName[name]
	if !ok {
		return 0, fmt.Errorf("%w: forcing variable %q", dynamo.ErrUnknownVariable, name)
	}
	i, ok := v.locIndex[location]
	if !ok {
		return 0, fmt.Errorf("%w: location %q of forcing variable %q", dynamo.ErrUnknownVariable, location, name)
	}
	return Address(v.offset + i), nil
}

func (s *Series) Value(a Address) float64 { return s.buf[a] }

func (s *Series) Refresh(ctx context.Context, windowStart, windowEnd time.Time) error {
	if !windowEnd.After(windowStart) {
		return fmt.Errorf("%w: [%s, %s)", ErrEmptyWindow, windowStart.Format(time.RFC3339), windowEnd.Format(time.RFC3339))
	}
	for _, v := range s.vars {
		if err := ctx.Err(); err != nil {
			return err
		}
		i, err := v.seek(windowStart, windowEnd)
		if err != nil {
			return fmt.Errorf("variable %q, window [%s, %s): %w", v.name,
				windowStart.Format(time.RFC3339), windowEnd.Format(time.RFC3339), err)
		}
		if i != v.active {
			s.log.Debug("record advanced", "variable", v.name, "end", v.records[i].End)
		}
		v.active = i
		copy(s.buf[v.offset:v.offset+len(v.locations)], v.records[i].Values)
	}
	return nil
}

// seek finds the record holding [ws, we) without moving behind the active one.
func (v *variable) seek(ws, we time.Time) (int, error) {
	i := v.active
	if i > 0 && !we.After(v.records[i-1].End) {
		return 0, ErrBackwardWindow
	}
	for i < len(v.records) && v.records[i].End.Before(we) {
		i++
	}
	if i == len(v.records) {
		return 0, ErrNotCovered
	}
	if i > 0 && ws.Before(v.records[i-1].End) {
		return 0, ErrSpansRecords
	}
	return i, nil
}
