package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/LeventeLantos/outreach-engine/internal/model"
)

type PostgresLeadRepo struct {
	db *sql.DB
}

func NewPostgresLeadRepo(db *sql.DB) *PostgresLeadRepo {
	return &PostgresLeadRepo{db: db}
}

func (r *PostgresLeadRepo) Create(ctx context.Context, lead *model.Lead) error {
	if lead.ID == "" {
		return errors.New("lead id is required")
	}
	if lead.Status == "" {
		lead.Status = model.JobInProgress
	}

	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO leads (id, target_profile, status, items, item_count, created_at, updated_at)
		VALUES ($1, $2, $3, '[]', 0, $4, $4)
	`, lead.ID, lead.TargetProfile, string(lead.Status), now)
	if err != nil {
		return fmt.Errorf("insert lead %s: %w", lead.ID, err)
	}

	lead.Items = nil
	lead.ItemCount = 0
	lead.CreatedAt = now
	lead.UpdatedAt = now
	return nil
}

func (r *PostgresLeadRepo) FindByID(ctx context.Context, id string) (*model.Lead, error) {
	var (
		lead    model.Lead
		status  string
		items   []byte
		lastErr sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, target_profile, status, items, item_count, last_error, created_at, updated_at
		FROM leads
		WHERE id = $1
	`, id).Scan(
		&lead.ID,
		&lead.TargetProfile,
		&status,
		&items,
		&lead.ItemCount,
		&lastErr,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	lead.Status = model.JobState(status)
	if lastErr.Valid {
		s := lastErr.String
		lead.LastError = &s
	}
	if err := json.Unmarshal(items, &lead.Items); err != nil {
		return nil, fmt.Errorf("decode items of %s: %w", id, err)
	}
	return &lead, nil
}

// Complete stores the collected items and their count.
func (r *PostgresLeadRepo) Complete(ctx context.Context, id string, items []model.Recipient) error {
	if items == nil {
		items = []model.Recipient{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE leads
		SET status = 'completed',
		    items = $2,
		    item_count = $3,
		    last_error = NULL,
		    updated_at = now()
		WHERE id = $1
	`, id, b, len(items))
	if err != nil {
		return err
	}
	return expectOneRow(res, id)
}

func (r *PostgresLeadRepo) Fail(ctx context.Context, id string, reason string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE leads
		SET status = 'error',
		    last_error = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, reason)
	if err != nil {
		return err
	}
	return expectOneRow(res, id)
}
