package campaign

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const LeasePrefix = "lease:campaign:"

func LeaseKey(campaignID string) string {
	return LeasePrefix + campaignID
}

// errLostOwnership ends a loop whose snapshot was handed to another loop.
var errLostOwnership = errors.New("campaign taken over by another loop")

// lease is the liveness record a running loop renews while it sleeps or
// waits on the actuator. It lives under its own key so renewals never race
// the snapshot writes.
type lease struct {
	Owner     string    `json:"owner"`
	RenewedAt time.Time `json:"renewedAt"`
}

// heartbeat renews the lease until the returned stop func is called. The
// first renewal happens before heartbeat returns.
func (q *Queue) heartbeat(ctx context.Context, owner string) (stop func()) {
	q.renewLease(ctx, owner)

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(q.opts.Heartbeat)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				q.renewLease(ctx, owner)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (q *Queue) renewLease(ctx context.Context, owner string) {
	err := q.store.Set(ctx, LeaseKey(q.id), lease{Owner: owner, RenewedAt: q.now().UTC()})
	if err != nil && ctx.Err() == nil {
		slog.Warn("campaign heartbeat failed", "campaign_id", q.id, "error", err)
	}
}

// lastSeen is the most recent sign of life for the loop owning the
// snapshot: the lease renewal when the owner matches, else the last persist.
func (q *Queue) lastSeen(ctx context.Context) (time.Time, error) {
	last := q.snap.UpdatedAt

	var l lease
	found, err := q.store.Get(ctx, LeaseKey(q.id), &l)
	if err != nil {
		return time.Time{}, err
	}
	if found && l.Owner == q.snap.Owner && l.RenewedAt.After(last) {
		last = l.RenewedAt
	}
	return last, nil
}
