// Package collector launches scrape jobs that fill lead lists in the
// background and tracks their status in the status store.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/outreach-engine/internal/client"
	"github.com/LeventeLantos/outreach-engine/internal/model"
	"github.com/LeventeLantos/outreach-engine/internal/repo"
	"github.com/LeventeLantos/outreach-engine/internal/store"
)

const (
	jobKeyPrefix     = "collect:job:"
	profileKeyPrefix = "collect:profile:"
)

var ErrInvalidRequest = errors.New("invalid request")

func JobKey(leadID string) string {
	return jobKeyPrefix + leadID
}

func ProfileKey(target string) string {
	return profileKeyPrefix + NormalizeProfile(target)
}

// NormalizeProfile makes "https://x.com/foo/" and "https://x.com/foo" share
// one status entry.
func NormalizeProfile(target string) string {
	return strings.TrimRight(strings.TrimSpace(target), "/")
}

// Scraper is the external batch actuator.
type Scraper interface {
	Run(ctx context.Context, target string, params client.RunParams) ([]map[string]any, error)
}

type Dispatcher interface {
	Go(name string, fn func(ctx context.Context) error) error
}

type LaunchRequest struct {
	TargetProfile string
	Count         int
	Credentials   model.Credentials
	ImportParams  map[string]any
}

func (r LaunchRequest) validate() error {
	var problems []string
	if NormalizeProfile(r.TargetProfile) == "" {
		problems = append(problems, "target profile is required")
	}
	if r.Count <= 0 {
		problems = append(problems, "count must be positive")
	}
	if r.Credentials.Empty() {
		problems = append(problems, "session credentials are required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(problems, "; "))
	}
	return nil
}

type Runner struct {
	leads   repo.LeadRepository
	store   store.Store
	scraper Scraper
	pool    Dispatcher
	now     func() time.Time
}

func NewRunner(leads repo.LeadRepository, st store.Store, scraper Scraper, pool Dispatcher) *Runner {
	return &Runner{
		leads:   leads,
		store:   st,
		scraper: scraper,
		pool:    pool,
		now:     time.Now,
	}
}

// Launch creates the lead record, marks the job in progress and hands the
// scrape to the pool. It returns the lead id without waiting for the scrape.
func (r *Runner) Launch(ctx context.Context, req LaunchRequest) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}

	target := NormalizeProfile(req.TargetProfile)
	now := r.now().UTC()
	lead := &model.Lead{
		ID:            uuid.NewString(),
		TargetProfile: target,
		Status:        model.JobInProgress,
		Items:         []model.Recipient{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := r.leads.Create(ctx, lead); err != nil {
		return "", fmt.Errorf("create lead: %w", err)
	}

	if err := r.writeStatus(ctx, lead.ID, target, model.JobStatus{Status: model.JobInProgress}); err != nil {
		return "", err
	}

	params := client.RunParams{
		Limit:       req.Count,
		Credentials: req.Credentials,
		Import:      req.ImportParams,
	}
	err := r.pool.Go("collect:"+lead.ID, func(ctx context.Context) error {
		return r.collect(ctx, lead.ID, target, req.Count, params)
	})
	if err != nil {
		r.fail(context.WithoutCancel(ctx), lead.ID, target, err)
		return "", err
	}

	slog.Info("collection job launched", "lead_id", lead.ID, "target", target, "count", req.Count)
	return lead.ID, nil
}

func (r *Runner) collect(ctx context.Context, leadID, target string, limit int, params client.RunParams) error {
	raw, err := r.scraper.Run(ctx, target, params)
	if err != nil {
		r.fail(context.WithoutCancel(ctx), leadID, target, err)
		return err
	}

	items := MapItems(raw, limit)
	if err := r.leads.Complete(ctx, leadID, items); err != nil {
		r.fail(context.WithoutCancel(ctx), leadID, target, err)
		return err
	}

	count := len(items)
	done := model.JobStatus{Status: model.JobCompleted, Count: &count}
	if err := r.writeStatus(ctx, leadID, target, done); err != nil {
		// the lead is already complete; one more try outside the job's context
		slog.Warn("write completed status failed, retrying", "lead_id", leadID, "error", err)
		if err := r.writeStatus(context.WithoutCancel(ctx), leadID, target, done); err != nil {
			slog.Error("completed status lost", "lead_id", leadID, "target", target, "error", err)
			return err
		}
	}
	slog.Info("collection job completed", "lead_id", leadID, "raw", len(raw), "kept", count)
	return nil
}

// fail records the error on both the lead and its status entry. Its own
// failures are only logged; the job is already lost.
func (r *Runner) fail(ctx context.Context, leadID, target string, cause error) {
	slog.Error("collection job failed", "lead_id", leadID, "target", target, "error", cause)

	if err := r.leads.Fail(ctx, leadID, cause.Error()); err != nil {
		slog.Warn("mark lead failed", "lead_id", leadID, "error", err)
	}
	st := model.JobStatus{Status: model.JobError, Message: cause.Error()}
	if err := r.writeStatus(ctx, leadID, target, st); err != nil {
		slog.Warn("write failed status", "lead_id", leadID, "error", err)
	}
}

// writeStatus updates the canonical job entry and the profile index in one
// atomic write.
func (r *Runner) writeStatus(ctx context.Context, leadID, target string, st model.JobStatus) error {
	st.LeadID = leadID
	st.TargetProfile = target
	st.UpdatedAt = r.now().UTC()

	err := r.store.SetMany(ctx, map[string]any{
		JobKey(leadID):     st,
		ProfileKey(target): leadID,
	})
	if err != nil {
		return fmt.Errorf("write job status: %w", err)
	}
	return nil
}

// Status reports the latest job for target. A target with no job on record
// reports in_progress.
func (r *Runner) Status(ctx context.Context, target string) (model.JobStatus, error) {
	target = NormalizeProfile(target)
	if target == "" {
		return model.JobStatus{}, fmt.Errorf("%w: target profile is required", ErrInvalidRequest)
	}

	var leadID string
	found, err := r.store.Get(ctx, ProfileKey(target), &leadID)
	if err != nil {
		return model.JobStatus{}, err
	}
	if !found {
		return model.JobStatus{Status: model.JobInProgress, TargetProfile: target}, nil
	}

	st, err := r.StatusByID(ctx, leadID)
	if err != nil {
		return model.JobStatus{}, err
	}
	if st.TargetProfile == "" {
		st.TargetProfile = target
	}
	return st, nil
}

// StatusByID reads the job entry for a lead id. While the entry is missing
// or still in_progress, a finished lead record answers instead, so an
// expired or unwritten entry never hides the outcome. Otherwise the same
// optimistic default as Status applies.
func (r *Runner) StatusByID(ctx context.Context, leadID string) (model.JobStatus, error) {
	if strings.TrimSpace(leadID) == "" {
		return model.JobStatus{}, fmt.Errorf("%w: lead id is required", ErrInvalidRequest)
	}

	var st model.JobStatus
	found, err := r.store.Get(ctx, JobKey(leadID), &st)
	if err != nil {
		return model.JobStatus{}, err
	}
	if found && st.Status != model.JobInProgress {
		return st, nil
	}

	lead, err := r.leads.FindByID(ctx, leadID)
	if err != nil {
		return model.JobStatus{}, fmt.Errorf("load lead: %w", err)
	}
	if lead == nil || lead.Status == model.JobInProgress {
		if found {
			return st, nil
		}
		return model.JobStatus{Status: model.JobInProgress, LeadID: leadID}, nil
	}
	return statusFromLead(lead), nil
}

func statusFromLead(lead *model.Lead) model.JobStatus {
	st := model.JobStatus{
		Status:        lead.Status,
		LeadID:        lead.ID,
		TargetProfile: lead.TargetProfile,
		UpdatedAt:     lead.UpdatedAt,
	}
	switch lead.Status {
	case model.JobCompleted:
		count := lead.ItemCount
		st.Count = &count
	case model.JobError:
		if lead.LastError != nil {
			st.Message = *lead.LastError
		}
	}
	return st
}
