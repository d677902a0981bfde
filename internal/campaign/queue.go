// Package campaign drives one delivery queue per campaign. A Queue never
// trusts its in-memory fields: every operation re-reads the snapshot from the
// status store first and writes it back after every mutation, so any
// process can pick a campaign up where another left it.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/outreach-engine/internal/model"
	"github.com/LeventeLantos/outreach-engine/internal/repo"
	"github.com/LeventeLantos/outreach-engine/internal/store"
	"github.com/LeventeLantos/outreach-engine/internal/templating"
)

const (
	KeyPrefix         = "queue:"
	DefaultSendDelay  = time.Minute
	DefaultMaxRetries = 2
	DefaultHeartbeat  = 30 * time.Second
)

func Key(campaignID string) string {
	return KeyPrefix + campaignID
}

// Attempter makes one delivery attempt and reports whether it succeeded.
type Attempter interface {
	Attempt(ctx context.Context, campaignID string, task model.Task) bool
}

type Options struct {
	SendDelay  time.Duration
	MaxRetries int
	// Heartbeat is how often a running loop renews its lease.
	Heartbeat time.Duration
}

func (o Options) withDefaults() Options {
	if o.SendDelay < 0 {
		o.SendDelay = 0
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.Heartbeat <= 0 {
		o.Heartbeat = DefaultHeartbeat
	}
	return o
}

type Queue struct {
	id       string
	store    store.Store
	messages repo.MessageRepository
	sender   Attempter
	opts     Options
	now      func() time.Time

	snap model.QueueSnapshot
}

func NewQueue(campaignID string, st store.Store, messages repo.MessageRepository, sender Attempter, opts Options) *Queue {
	return &Queue{
		id:       campaignID,
		store:    st,
		messages: messages,
		sender:   sender,
		opts:     opts.withDefaults(),
		now:      time.Now,
		snap:     model.QueueSnapshot{CampaignID: campaignID},
	}
}

// Snapshot returns a copy of the last hydrated or persisted state.
func (q *Queue) Snapshot() model.QueueSnapshot {
	s := q.snap
	s.Queue = append([]model.Task(nil), q.snap.Queue...)
	s.ProcessedRecipients = append([]string(nil), q.snap.ProcessedRecipients...)
	return s
}

// Hydrate replaces the in-memory state with the stored snapshot. A missing
// snapshot yields an empty queue. It reports whether a snapshot existed.
func (q *Queue) Hydrate(ctx context.Context) (bool, error) {
	var snap model.QueueSnapshot
	found, err := q.store.Get(ctx, Key(q.id), &snap)
	if err != nil {
		return false, err
	}
	if !found {
		snap = model.QueueSnapshot{}
	}
	snap.CampaignID = q.id
	q.snap = snap
	return found, nil
}

func (q *Queue) persist(ctx context.Context) error {
	q.snap.UpdatedAt = q.now().UTC()
	return q.store.Set(ctx, Key(q.id), q.snap)
}

// AddRecipients resolves the template for every recipient and appends the
// tasks behind whatever a previous caller already queued.
func (q *Queue) AddRecipients(ctx context.Context, recipients []model.Recipient, tmpl string, creds model.Credentials) error {
	if _, err := q.Hydrate(ctx); err != nil {
		return err
	}

	for _, r := range recipients {
		q.snap.Queue = append(q.snap.Queue, model.Task{
			RecipientID: r.ID,
			Message:     templating.Resolve(tmpl, r),
			Credentials: creds,
		})
	}
	return q.persist(ctx)
}

// Stop marks the campaign stopped. The running loop notices on its next
// check; Stop does not wait for it. With no loop running there is nobody to
// observe the flag, so the snapshot is removed outright and a later start
// begins clean.
func (q *Queue) Stop(ctx context.Context) error {
	found, err := q.Hydrate(ctx)
	if err != nil {
		return err
	}
	if !found || !q.snap.IsProcessing {
		q.snap = model.QueueSnapshot{CampaignID: q.id}
		return q.store.Del(ctx, Key(q.id), LeaseKey(q.id))
	}
	q.snap.IsStopped = true
	return q.persist(ctx)
}

// Process runs the delivery loop until the queue drains, the campaign is
// stopped, or an infrastructure error aborts the run. It returns at once
// when another loop owns the queue or the campaign is stopped.
func (q *Queue) Process(ctx context.Context) (err error) {
	if _, err := q.Hydrate(ctx); err != nil {
		return err
	}
	if q.snap.IsProcessing || q.snap.IsStopped {
		slog.Info("campaign processing skipped",
			"campaign_id", q.id,
			"processing", q.snap.IsProcessing,
			"stopped", q.snap.IsStopped,
		)
		return nil
	}

	owner := uuid.NewString()
	q.snap.IsProcessing = true
	q.snap.Owner = owner
	if err := q.persist(ctx); err != nil {
		return err
	}

	slog.Info("campaign processing started", "campaign_id", q.id, "queued", len(q.snap.Queue))
	stopHeartbeat := q.heartbeat(ctx, owner)
	defer func() {
		stopHeartbeat()
		err = q.finish(ctx, err)
	}()

	retries := 0
	for {
		if err := q.reload(ctx, owner); err != nil {
			return err
		}
		if q.snap.IsStopped {
			slog.Info("campaign stop observed", "campaign_id", q.id)
			return nil
		}
		if len(q.snap.Queue) == 0 {
			return nil
		}

		head := q.snap.Queue[0]
		if q.snap.IsProcessed(head.RecipientID) {
			q.snap.Queue = q.snap.Queue[1:]
			if err := q.persist(ctx); err != nil {
				return err
			}
			continue
		}

		if err := sleep(ctx, q.opts.SendDelay); err != nil {
			return err
		}

		if err := q.reload(ctx, owner); err != nil {
			return err
		}
		if q.snap.IsStopped {
			slog.Info("campaign stop observed", "campaign_id", q.id)
			return nil
		}
		if len(q.snap.Queue) == 0 {
			return nil
		}
		head = q.snap.Queue[0]
		if q.snap.IsProcessed(head.RecipientID) {
			continue
		}

		if q.sender.Attempt(ctx, q.id, head) {
			// the message is out; bookkeeping must land even during shutdown
			bg := context.WithoutCancel(ctx)
			if err := q.markDelivered(bg, head.RecipientID); err != nil {
				return err
			}
			retries = 0
			if err := q.advance(bg, owner, head.RecipientID, true); err != nil {
				return err
			}
			continue
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		retries++
		exhausted := retries >= q.opts.MaxRetries
		if exhausted {
			slog.Warn("recipient exhausted retries",
				"campaign_id", q.id,
				"recipient_id", head.RecipientID,
				"attempts", retries,
			)
			retries = 0
		}
		if err := q.advance(ctx, owner, head.RecipientID, exhausted); err != nil {
			return err
		}
	}
}

// reload hydrates and fails with errLostOwnership when another loop has
// claimed the snapshot. A missing snapshot reads as an empty queue.
func (q *Queue) reload(ctx context.Context, owner string) error {
	found, err := q.Hydrate(ctx)
	if err != nil {
		return err
	}
	if found && q.snap.Owner != owner {
		return errLostOwnership
	}
	return nil
}

// advance merges the outcome of one attempt into the stored snapshot, so a
// stop or an append that landed during the attempt is not overwritten. A
// terminal outcome is recorded even after a takeover so the new owner skips
// the recipient; the ownership flags are then left alone. A snapshot that
// vanished meanwhile stays gone.
func (q *Queue) advance(ctx context.Context, owner, recipientID string, done bool) error {
	found, err := q.Hydrate(ctx)
	if err != nil || !found {
		return err
	}
	if q.snap.Owner != owner {
		if !done {
			return errLostOwnership
		}
		q.snap.MarkProcessed(recipientID)
		return errors.Join(errLostOwnership, q.persist(ctx))
	}
	if done {
		q.snap.MarkProcessed(recipientID)
		if len(q.snap.Queue) > 0 && q.snap.Queue[0].RecipientID == recipientID {
			q.snap.Queue = q.snap.Queue[1:]
		}
	}
	q.snap.IsProcessing = true
	return q.persist(ctx)
}

// finish releases the queue. A canceled context means the process is
// shutting down: the snapshot is kept so the next process resumes it. A
// loop that lost ownership leaves everything to the new owner. Any other
// exit resets the campaign and removes its snapshot.
func (q *Queue) finish(ctx context.Context, runErr error) error {
	if errors.Is(runErr, errLostOwnership) {
		slog.Warn("campaign processing handed over", "campaign_id", q.id)
		return nil
	}

	q.snap.IsProcessing = false
	q.snap.Owner = ""
	bg := context.WithoutCancel(ctx)

	if errors.Is(runErr, context.Canceled) && ctx.Err() != nil {
		err := errors.Join(q.persist(bg), q.store.Del(bg, LeaseKey(q.id)))
		if err != nil {
			return errors.Join(runErr, err)
		}
		slog.Info("campaign processing suspended", "campaign_id", q.id, "remaining", len(q.snap.Queue))
		return runErr
	}

	q.snap.Queue = nil
	if err := q.store.Del(bg, Key(q.id), LeaseKey(q.id)); err != nil {
		runErr = errors.Join(runErr, err)
	}

	if runErr != nil {
		slog.Error("campaign processing aborted", "campaign_id", q.id, "error", runErr)
		return runErr
	}
	slog.Info("campaign processing finished",
		"campaign_id", q.id,
		"processed", len(q.snap.ProcessedRecipients),
	)
	return nil
}

// markDelivered flips the recipient's durable flag with a read-modify-write
// of the whole recipient list.
func (q *Queue) markDelivered(ctx context.Context, recipientID string) error {
	rec, err := q.messages.FindByID(ctx, q.id)
	if err != nil {
		return fmt.Errorf("load message record: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("message record %s not found", q.id)
	}

	if rec.Delivered(recipientID) {
		return nil
	}
	rec.MarkDelivered(recipientID)
	if err := q.messages.UpdateRecipients(ctx, q.id, rec.Recipients); err != nil {
		return fmt.Errorf("update message record: %w", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
