package output

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/san-kum/nodesim/internal/node"

	_ "modernc.org/sqlite"
)

// SQLiteSink stores selected outputs in table outputs. Rows of one step are
// written in one transaction, committed when the next step starts or the
// sink is closed.
type SQLiteSink struct {
	ctx  context.Context
	db   *sql.DB
	sel  *Selection
	tx   *sql.Tx
	ins  *sql.Stmt
	step int
}

func OpenSQLite(ctx context.Context, path string, sel *Selection) (*SQLiteSink, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteSink{ctx: ctx, db: db, sel: sel}, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS outputs (
			step INTEGER NOT NULL,
			time TEXT NOT NULL,
			node TEXT NOT NULL,
			variable TEXT NOT NULL,
			value REAL NOT NULL,
			PRIMARY KEY (step, node, variable)
		);
	`)
	return err
}

func (s *SQLiteSink) Output(step int, t time.Time, n *node.Node) error {
	rows := s.sel.rows(n)
	if len(rows) == 0 {
		return nil
	}
	if s.tx != nil && step != s.step {
		if err := s.commit(); err != nil {
			return err
		}
	}
	if s.tx == nil {
		tx, err := s.db.BeginTx(s.ctx, nil)
		if err != nil {
			return err
		}
		ins, err := tx.PrepareContext(s.ctx, `
			INSERT INTO outputs (step, time, node, variable, value)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(step, node, variable) DO UPDATE SET
				time = excluded.time,
				value = excluded.value
		`)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		s.tx, s.ins, s.step = tx, ins, step
	}

	ts := t.UTC().Format(TimeLayout)
	for _, r := range rows {
		if _, err := s.ins.ExecContext(s.ctx, step, ts, n.ID(), r.variable, r.value); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteSink) commit() error {
	err := s.ins.Close()
	err = errors.Join(err, s.tx.Commit())
	s.tx, s.ins = nil, nil
	return err
}

// Close commits pending rows and closes the database.
func (s *SQLiteSink) Close() error {
	var err error
	if s.tx != nil {
		err = s.commit()
	}
	return errors.Join(err, s.db.Close())
}

// ReadSQLiteSeries returns the values of one variable of one node ordered
// by step.
func ReadSQLiteSeries(ctx context.Context, path, id, variable string) ([]Point, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rs, err := db.QueryContext(ctx, `
		SELECT time, value FROM outputs
		WHERE node = ? AND variable = ?
		ORDER BY step
	`, id, variable)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var points []Point
	for rs.Next() {
		var ts string
		var p Point
		if err := rs.Scan(&ts, &p.Value); err != nil {
			return nil, err
		}
		if p.Time, err = time.Parse(TimeLayout, ts); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rs.Err()
}
