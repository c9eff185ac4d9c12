package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/moznion/go-optional"

	_ "github.com/mattn/go-sqlite3"
)

// ErrRunNotFound is returned by GetRun for unknown run ids.
var ErrRunNotFound = errors.New("journal: run not found")

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLite is the run store. Every fill and equity row is keyed by run id.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: schema %s: %w", path, err)
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

// RecordRun stores a run summary.
func (j *SQLite) RecordRun(ctx context.Context, r Run) error {
	return recordRun(ctx, j.db, r)
}

// RecordFill stores a fill for runID.
func (j *SQLite) RecordFill(ctx context.Context, runID string, f Fill) error {
	return recordFill(ctx, j.db, runID, f)
}

// RecordEquity stores an equity snapshot for runID.
func (j *SQLite) RecordEquity(ctx context.Context, runID string, s EquitySnapshot) error {
	return recordEquity(ctx, j.db, runID, s)
}

// SaveRun stores a run with all of its fills and equity samples in one
// transaction.
func (j *SQLite) SaveRun(ctx context.Context, r Run, fills []Fill, curve []EquitySnapshot) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("journal: save run %s: %w", r.RunID, err)
	}
	if err := saveRun(ctx, tx, r, fills, curve); err != nil {
		tx.Rollback()
		return fmt.Errorf("journal: save run %s: %w", r.RunID, err)
	}
	return tx.Commit()
}

func saveRun(ctx context.Context, tx execer, r Run, fills []Fill, curve []EquitySnapshot) error {
	if err := recordRun(ctx, tx, r); err != nil {
		return err
	}
	for _, f := range fills {
		if err := recordFill(ctx, tx, r.RunID, f); err != nil {
			return err
		}
	}
	for _, s := range curve {
		if err := recordEquity(ctx, tx, r.RunID, s); err != nil {
			return err
		}
	}
	return nil
}

func recordRun(ctx context.Context, db execer, r Run) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO runs
		(run_id, created, dataset, strategy, config, start_time, end_time, start_value, end_value,
		 total_return, annual_return, max_drawdown, sharpe, mar, fills, trades, wins, losses, realized_pnl)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Created, r.Dataset, r.Strategy, r.Config, r.Start, r.End, r.StartValue, r.EndValue,
		r.TotalReturn, r.AnnualReturn, r.MaxDrawdown, r.Sharpe, r.MAR, r.Fills, r.Trades, r.Wins, r.Losses,
		r.RealizedPnL,
	)
	return err
}

func recordFill(ctx context.Context, db execer, runID string, f Fill) error {
	var diag [6]sql.NullFloat64
	if d, err := f.Diagnostics.Take(); err == nil {
		for i, v := range []float64{d.Price, d.EMA, d.ATR, d.Exposure, d.TargetPosition, d.CurrentPosition} {
			diag[i] = sql.NullFloat64{Float64: v, Valid: true}
		}
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO fills
		(fill_id, run_id, order_id, trade_id, time, is_buy, price, size, value, pnl, commission, closed, reason,
		 diag_price, diag_ema, diag_atr, diag_exposure, diag_target, diag_current)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, runID, f.OrderID, f.TradeID, f.Time, f.IsBuy, f.Price, f.Size, f.Value, f.PnL, f.Commission,
		f.Closed, f.Reason, diag[0], diag[1], diag[2], diag[3], diag[4], diag[5],
	)
	return err
}

func recordEquity(ctx context.Context, db execer, runID string, s EquitySnapshot) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO equity
		(run_id, time, cash, position, value)
		VALUES (?, ?, ?, ?, ?)`,
		runID, s.Time, s.Cash, s.Position, s.Value,
	)
	return err
}

const runColumns = `run_id, created, dataset, strategy, config, start_time, end_time, start_value, end_value,
		total_return, annual_return, max_drawdown, sharpe, mar, fills, trades, wins, losses, realized_pnl`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var r Run
	err := row.Scan(
		&r.RunID, &r.Created, &r.Dataset, &r.Strategy, &r.Config, &r.Start, &r.End,
		&r.StartValue, &r.EndValue, &r.TotalReturn, &r.AnnualReturn, &r.MaxDrawdown,
		&r.Sharpe, &r.MAR, &r.Fills, &r.Trades, &r.Wins, &r.Losses, &r.RealizedPnL,
	)
	return r, err
}

// GetRun returns a single run summary by id.
func (j *SQLite) GetRun(ctx context.Context, runID string) (Run, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, fmt.Errorf("%w: %q", ErrRunNotFound, runID)
		}
		return Run{}, err
	}
	return r, nil
}

// ListRuns returns every stored run, oldest first. A non-empty dataset
// restricts the list to that dataset.
func (j *SQLite) ListRuns(ctx context.Context, dataset string) ([]Run, error) {
	q := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if dataset != "" {
		q += ` WHERE dataset = ?`
		args = append(args, dataset)
	}
	q += ` ORDER BY created ASC, run_id ASC`

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListFillsByRunID returns the run's fills in time order.
func (j *SQLite) ListFillsByRunID(ctx context.Context, runID string) ([]Fill, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT fill_id, order_id, trade_id, time, is_buy, price, size, value, pnl, commission, closed, reason,
		       diag_price, diag_ema, diag_atr, diag_exposure, diag_target, diag_current
		FROM fills
		WHERE run_id = ?
		ORDER BY time ASC, fill_id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Fill
	for rows.Next() {
		var (
			f    Fill
			diag [6]sql.NullFloat64
		)
		if err := rows.Scan(
			&f.ID, &f.OrderID, &f.TradeID, &f.Time, &f.IsBuy, &f.Price, &f.Size, &f.Value,
			&f.PnL, &f.Commission, &f.Closed, &f.Reason,
			&diag[0], &diag[1], &diag[2], &diag[3], &diag[4], &diag[5],
		); err != nil {
			return nil, err
		}
		if diag[0].Valid {
			f.Diagnostics = optional.Some(Diagnostics{
				Price:           diag[0].Float64,
				EMA:             diag[1].Float64,
				ATR:             diag[2].Float64,
				Exposure:        diag[3].Float64,
				TargetPosition:  diag[4].Float64,
				CurrentPosition: diag[5].Float64,
			})
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEquityByRunID returns the run's equity curve in time order.
func (j *SQLite) ListEquityByRunID(ctx context.Context, runID string) ([]EquitySnapshot, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT time, cash, position, value
		FROM equity
		WHERE run_id = ?
		ORDER BY time ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var s EquitySnapshot
		if err := rows.Scan(&s.Time, &s.Cash, &s.Position, &s.Value); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
