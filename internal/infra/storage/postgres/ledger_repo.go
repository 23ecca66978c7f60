package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/overseer/internal/core/domain"
)

// LedgerRepo persists the harness pass/fail ledger.
type LedgerRepo struct {
	db *DB
}

func NewLedgerRepo(db *DB) *LedgerRepo {
	return &LedgerRepo{db: db}
}

type ledgerRow struct {
	ID                string    `db:"id"`
	ScenarioName      string    `db:"scenario_name"`
	Passed            bool      `db:"passed"`
	ConsecutivePasses int       `db:"consecutive_passes"`
	SLAMillis         int64     `db:"sla_ms"`
	Difficulty        int       `db:"difficulty"`
	RecoveryMillis    int64     `db:"recovery_ms"`
	RunAt             time.Time `db:"run_at"`
}

func (r *LedgerRepo) Append(ctx context.Context, entry *domain.LedgerEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scenario_ledger (id, scenario_name, passed, consecutive_passes, sla_ms, difficulty, recovery_ms, run_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.ScenarioName, entry.Passed, entry.ConsecutivePasses,
		entry.SLA.Milliseconds(), entry.Difficulty, entry.RecoveryTime.Milliseconds(), entry.RunAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

func (r *LedgerRepo) Last(ctx context.Context, scenario string) (*domain.LedgerEntry, error) {
	var row ledgerRow
	err := r.db.GetContext(ctx, &row, `
		SELECT * FROM scenario_ledger WHERE scenario_name = $1 ORDER BY run_at DESC LIMIT 1`,
		scenario,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last ledger entry: %w", err)
	}
	return rowToLedger(&row), nil
}

func (r *LedgerRepo) Recent(ctx context.Context, limit int) ([]*domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []ledgerRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT * FROM scenario_ledger ORDER BY run_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	out := make([]*domain.LedgerEntry, 0, len(rows))
	for i := range rows {
		out = append(out, rowToLedger(&rows[i]))
	}
	return out, nil
}

func (r *LedgerRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM scenario_ledger WHERE run_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune ledger: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func rowToLedger(row *ledgerRow) *domain.LedgerEntry {
	return &domain.LedgerEntry{
		ID:                row.ID,
		ScenarioName:      row.ScenarioName,
		Passed:            row.Passed,
		ConsecutivePasses: row.ConsecutivePasses,
		SLA:               time.Duration(row.SLAMillis) * time.Millisecond,
		Difficulty:        row.Difficulty,
		RecoveryTime:      time.Duration(row.RecoveryMillis) * time.Millisecond,
		RunAt:             row.RunAt,
	}
}
