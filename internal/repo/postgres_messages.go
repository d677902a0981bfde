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

type PostgresMessageRepo struct {
	db *sql.DB
}

func NewPostgresMessageRepo(db *sql.DB) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

func (r *PostgresMessageRepo) Create(ctx context.Context, rec *model.MessageRecord) error {
	if rec.ID == "" {
		return errors.New("campaign id is required")
	}
	if rec.Recipients == nil {
		rec.Recipients = []model.RecipientStatus{}
	}
	recipients, err := json.Marshal(rec.Recipients)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO campaign_messages (id, template, recipients, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`, rec.ID, rec.Template, recipients, now)
	if err != nil {
		return fmt.Errorf("insert campaign message %s: %w", rec.ID, err)
	}

	rec.CreatedAt = now
	rec.UpdatedAt = now
	return nil
}

func (r *PostgresMessageRepo) FindByID(ctx context.Context, id string) (*model.MessageRecord, error) {
	var (
		rec        model.MessageRecord
		recipients []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, template, recipients, created_at, updated_at
		FROM campaign_messages
		WHERE id = $1
	`, id).Scan(&rec.ID, &rec.Template, &recipients, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(recipients, &rec.Recipients); err != nil {
		return nil, fmt.Errorf("decode recipients of %s: %w", id, err)
	}
	return &rec, nil
}

// UpdateRecipients replaces the whole recipient list.
func (r *PostgresMessageRepo) UpdateRecipients(ctx context.Context, id string, recipients []model.RecipientStatus) error {
	b, err := json.Marshal(recipients)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE campaign_messages
		SET recipients = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, b)
	if err != nil {
		return err
	}
	return expectOneRow(res, id)
}

func expectOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("record %s not found", id)
	}
	return nil
}
