package ldap

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// DefaultRefreshInterval is used when Refresher.Interval is not positive.
const DefaultRefreshInterval = 5 * time.Minute

// RefreshObserver is told about every full cache refresh.
type RefreshObserver interface {
	ObserveRefresh(cache string, entries int, duration time.Duration, err error)
}

// Refresher periodically reloads the user and group caches.
type Refresher struct {
	Users    *UserCache
	Groups   *GroupCache
	Interval time.Duration
	Observer RefreshObserver
}

// RefreshNow reloads both caches once. The caches are refreshed independently
// and a failure of one does not prevent the other.
func (r *Refresher) RefreshNow(ctx context.Context) error {
	var errs []error

	if r.Users != nil {
		errs = append(errs, r.refresh(ctx, "users", r.Users.Refresh, r.Users.Len))
	}
	if r.Groups != nil {
		errs = append(errs, r.refresh(ctx, "groups", r.Groups.Refresh, r.Groups.Len))
	}

	return errors.Join(errs...)
}

// Run refreshes immediately, then on every tick until ctx is done.
// Refresh failures are logged and do not stop the loop.
func (r *Refresher) Run(ctx context.Context) {
	r.refreshAndLog(ctx)
	r.Watch(ctx)
}

// Watch refreshes on every tick until ctx is done, without an initial
// refresh. Use it after a RefreshNow whose failure should be fatal.
func (r *Refresher) Watch(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}

	tflog.SubsystemInfo(ctx, SubsystemCache, "Starting cache refresher", map[string]any{
		"interval": interval.String(),
	})

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			tflog.SubsystemInfo(ctx, SubsystemCache, "Stopping cache refresher", nil)
			return
		case <-ticker.C:
			r.refreshAndLog(ctx)
		}
	}
}

func (r *Refresher) refreshAndLog(ctx context.Context) {
	if err := r.RefreshNow(ctx); err != nil && ctx.Err() == nil {
		tflog.SubsystemWarn(ctx, SubsystemCache, "Cache refresh failed", map[string]any{
			"error": err.Error(),
		})
	}
}

func (r *Refresher) refresh(ctx context.Context, name string, refresh func(context.Context) error, size func() int) error {
	start := time.Now()
	err := refresh(ctx)

	if r.Observer != nil {
		r.Observer.ObserveRefresh(name, size(), time.Since(start), err)
	}

	return err
}
