package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/LeventeLantos/outreach-engine/internal/model"
	"github.com/LeventeLantos/outreach-engine/internal/repo"
	"github.com/LeventeLantos/outreach-engine/internal/store"
)

var ErrInvalidRequest = errors.New("invalid request")

// Dispatcher runs a detached job.
type Dispatcher interface {
	Go(name string, fn func(ctx context.Context) error) error
}

type StartRequest struct {
	CampaignID  string
	Recipients  []model.Recipient
	Template    string
	Credentials model.Credentials
}

func (r StartRequest) validate() error {
	var problems []string
	if strings.TrimSpace(r.CampaignID) == "" {
		problems = append(problems, "campaign id is required")
	}
	if strings.TrimSpace(r.Template) == "" {
		problems = append(problems, "template is required")
	}
	if len(r.Recipients) == 0 {
		problems = append(problems, "at least one recipient is required")
	}
	for i, rc := range r.Recipients {
		if strings.TrimSpace(rc.ID) == "" {
			problems = append(problems, fmt.Sprintf("recipient %d has no id", i))
		}
	}
	if r.Credentials.Empty() {
		problems = append(problems, "session credentials are required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(problems, "; "))
	}
	return nil
}

// Service is the entrypoint for campaign start/stop/status. It keeps no
// registry of running campaigns; each call builds a Queue from the store.
type Service struct {
	store    store.Store
	messages repo.MessageRepository
	sender   Attempter
	pool     Dispatcher
	opts     Options
}

func NewService(st store.Store, messages repo.MessageRepository, sender Attempter, pool Dispatcher, opts Options) *Service {
	return &Service{
		store:    st,
		messages: messages,
		sender:   sender,
		pool:     pool,
		opts:     opts.withDefaults(),
	}
}

func (s *Service) queue(campaignID string) *Queue {
	return NewQueue(campaignID, s.store, s.messages, s.sender, s.opts)
}

// StartCampaign enqueues the recipients and launches the processing loop in
// the background. It returns before any delivery is attempted.
func (s *Service) StartCampaign(ctx context.Context, req StartRequest) error {
	if err := req.validate(); err != nil {
		return err
	}

	if err := s.ensureRecord(ctx, req); err != nil {
		return err
	}

	q := s.queue(req.CampaignID)
	if err := q.AddRecipients(ctx, req.Recipients, req.Template, req.Credentials); err != nil {
		return fmt.Errorf("enqueue recipients: %w", err)
	}

	slog.Info("campaign started", "campaign_id", req.CampaignID, "recipients", len(req.Recipients))
	return s.dispatch(req.CampaignID)
}

func (s *Service) dispatch(campaignID string) error {
	return s.pool.Go("campaign:"+campaignID, func(ctx context.Context) error {
		return s.queue(campaignID).Process(ctx)
	})
}

func (s *Service) ensureRecord(ctx context.Context, req StartRequest) error {
	rec, err := s.messages.FindByID(ctx, req.CampaignID)
	if err != nil {
		return fmt.Errorf("load message record: %w", err)
	}
	if rec != nil {
		return nil
	}

	rec = &model.MessageRecord{
		ID:         req.CampaignID,
		Template:   req.Template,
		Recipients: make([]model.RecipientStatus, 0, len(req.Recipients)),
	}
	for _, r := range req.Recipients {
		rec.Recipients = append(rec.Recipients, model.RecipientStatus{RecipientID: r.ID})
	}
	if err := s.messages.Create(ctx, rec); err != nil {
		return fmt.Errorf("create message record: %w", err)
	}
	return nil
}

func (s *Service) StopCampaign(ctx context.Context, campaignID string) error {
	if strings.TrimSpace(campaignID) == "" {
		return fmt.Errorf("%w: campaign id is required", ErrInvalidRequest)
	}
	if err := s.queue(campaignID).Stop(ctx); err != nil {
		return err
	}
	slog.Info("campaign stop requested", "campaign_id", campaignID)
	return nil
}

// CampaignStatus reads the snapshot. A campaign without one is Idle: it
// either never started or already finished.
func (s *Service) CampaignStatus(ctx context.Context, campaignID string) (model.CampaignStatus, error) {
	q := s.queue(campaignID)
	found, err := q.Hydrate(ctx)
	if err != nil {
		return model.CampaignStatus{}, err
	}
	if !found {
		return model.CampaignStatus{State: model.CampaignIdle}, nil
	}

	snap := q.Snapshot()
	return model.CampaignStatus{
		IsActive:       snap.IsProcessing && !snap.IsStopped,
		RemainingCount: len(snap.Queue),
		ProcessedCount: len(snap.ProcessedRecipients),
		State:          snap.Status(),
	}, nil
}

// Recover resumes campaigns whose snapshot still holds work but whose loop
// is gone: either released on shutdown, or left marked processing by a
// process whose lease has not been renewed for staleAfter. It returns how
// many loops it dispatched.
func (s *Service) Recover(ctx context.Context, staleAfter time.Duration) (int, error) {
	keys, err := s.store.Keys(ctx, KeyPrefix)
	if err != nil {
		return 0, err
	}

	resumed := 0
	for _, key := range keys {
		id := strings.TrimPrefix(key, KeyPrefix)
		q := s.queue(id)
		found, err := q.Hydrate(ctx)
		if err != nil {
			slog.Warn("recovery hydrate failed", "campaign_id", id, "error", err)
			continue
		}
		if !found || q.snap.IsStopped || len(q.snap.Queue) == 0 {
			continue
		}

		if q.snap.IsProcessing {
			last, err := q.lastSeen(ctx)
			if err != nil {
				slog.Warn("recovery lease read failed", "campaign_id", id, "error", err)
				continue
			}
			if staleAfter <= 0 || time.Since(last) < staleAfter {
				continue
			}
			slog.Warn("releasing orphaned campaign", "campaign_id", id, "last_seen", last)
			q.snap.IsProcessing = false
			q.snap.Owner = ""
			if err := q.persist(ctx); err != nil {
				slog.Warn("recovery release failed", "campaign_id", id, "error", err)
				continue
			}
		}

		if err := s.dispatch(id); err != nil {
			return resumed, fmt.Errorf("resume %s: %w", id, err)
		}
		resumed++
	}

	if resumed > 0 {
		slog.Info("campaigns resumed", "count", resumed)
	}
	return resumed, nil
}
