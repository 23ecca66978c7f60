package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/overseer/internal/core/domain"
	"github.com/vietddude/overseer/internal/infra/storage"
)

// IncidentRepo persists incidents with their diagnostic bundles as JSONB.
type IncidentRepo struct {
	db *DB
}

func NewIncidentRepo(db *DB) *IncidentRepo {
	return &IncidentRepo{db: db}
}

type incidentRow struct {
	ID        string         `db:"id"`
	UnitName  string         `db:"unit_name"`
	Signature string         `db:"signature"`
	Bundle    []byte         `db:"bundle"`
	Playbook  sql.NullString `db:"playbook"`
	Escalated bool           `db:"escalated"`
	Synthetic bool           `db:"synthetic"`
	Outcome   string         `db:"outcome"`
	Status    string         `db:"status"`
	CreatedAt time.Time      `db:"created_at"`
	ClosedAt  sql.NullTime   `db:"closed_at"`
}

func (r *IncidentRepo) Create(ctx context.Context, incident *domain.Incident) error {
	bundle, err := json.Marshal(incident.Bundle)
	if err != nil {
		return fmt.Errorf("failed to marshal bundle: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO incidents (id, unit_name, signature, bundle, playbook, escalated, synthetic, outcome, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		incident.ID, incident.UnitName, incident.Signature, bundle,
		nullStr(incident.Playbook), incident.Escalated, incident.Synthetic,
		string(incident.Outcome), string(incident.Status), incident.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert incident: %w", err)
	}
	return nil
}

func (r *IncidentRepo) Close(
	ctx context.Context,
	id string,
	outcome domain.IncidentOutcome,
	playbook string,
) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE incidents
		SET status = $2, outcome = $3, playbook = COALESCE(NULLIF($4, ''), playbook), closed_at = $5
		WHERE id = $1`,
		id, string(domain.IncidentStatusClosed), string(outcome), playbook, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to close incident: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", storage.ErrIncidentNotFound, id)
	}
	return nil
}

func (r *IncidentRepo) Get(ctx context.Context, id string) (*domain.Incident, error) {
	var row incidentRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM incidents WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", storage.ErrIncidentNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get incident: %w", err)
	}
	return rowToIncident(&row)
}

func (r *IncidentRepo) ListOpen(ctx context.Context) ([]*domain.Incident, error) {
	var rows []incidentRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT * FROM incidents WHERE status = $1 ORDER BY created_at DESC`,
		string(domain.IncidentStatusOpen),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list open incidents: %w", err)
	}
	return rowsToIncidents(rows)
}

func (r *IncidentRepo) ListRecent(ctx context.Context, limit int) ([]*domain.Incident, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []incidentRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT * FROM incidents ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	return rowsToIncidents(rows)
}

func (r *IncidentRepo) CountOpen(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM incidents WHERE status = $1`,
		string(domain.IncidentStatusOpen),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to count incidents: %w", err)
	}
	return n, nil
}

func (r *IncidentRepo) DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM incidents WHERE status = $1 AND closed_at < $2`,
		string(domain.IncidentStatusClosed), cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune incidents: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func rowToIncident(row *incidentRow) (*domain.Incident, error) {
	inc := &domain.Incident{
		ID:        row.ID,
		UnitName:  row.UnitName,
		Signature: row.Signature,
		Playbook:  row.Playbook.String,
		Escalated: row.Escalated,
		Synthetic: row.Synthetic,
		Outcome:   domain.IncidentOutcome(row.Outcome),
		Status:    domain.IncidentStatus(row.Status),
		CreatedAt: row.CreatedAt,
	}
	if row.ClosedAt.Valid {
		inc.ClosedAt = row.ClosedAt.Time
	}
	if len(row.Bundle) > 0 {
		var bundle domain.DiagnosticBundle
		if err := json.Unmarshal(row.Bundle, &bundle); err != nil {
			return nil, fmt.Errorf("failed to unmarshal bundle: %w", err)
		}
		inc.Bundle = &bundle
	}
	return inc, nil
}

func rowsToIncidents(rows []incidentRow) ([]*domain.Incident, error) {
	out := make([]*domain.Incident, 0, len(rows))
	for i := range rows {
		inc, err := rowToIncident(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
