package repo

import (
	"context"

	"github.com/LeventeLantos/outreach-engine/internal/model"
)

// MessageRepository stores campaign message records. FindByID returns
// (nil, nil) when the record does not exist.
type MessageRepository interface {
	Create(ctx context.Context, rec *model.MessageRecord) error
	FindByID(ctx context.Context, id string) (*model.MessageRecord, error)
	UpdateRecipients(ctx context.Context, id string, recipients []model.RecipientStatus) error
}

// LeadRepository stores the lists filled by collection jobs.
type LeadRepository interface {
	Create(ctx context.Context, lead *model.Lead) error
	FindByID(ctx context.Context, id string) (*model.Lead, error)
	Complete(ctx context.Context, id string, items []model.Recipient) error
	Fail(ctx context.Context, id string, reason string) error
}
