package session

import (
	"context"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("session")

// minSweepInterval bounds how often Run checks for idle sessions.
const minSweepInterval = time.Second

// Releaser frees every lock of a session and returns how many transactions
// were released. lockmgr.ILockManager.ReleaseBySession satisfies it.
type Releaser func(sessionID string) (released int, err error)

// Info is the state kept per session.
type Info struct {
	SessionID string
	HMCID     string
	LastSeen  time.Time
}

// Registry tracks the management console sessions that talked to the
// service. When a session is removed, explicitly or because it was idle for
// longer than the timeout, all of its locks are released.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry struct {
	sessions *xsync.MapOf[string, Info]
	timeout  time.Duration
	release  Releaser
	now      func() time.Time
}

// NewRegistry creates a Registry. A timeout of 0 disables idle expiry.
func NewRegistry(timeout time.Duration, release Releaser) *Registry {
	return &Registry{
		sessions: xsync.NewMapOf[string, Info](),
		timeout:  timeout,
		release:  release,
		now:      time.Now,
	}
}

// Touch records activity of a session and returns its state.
func (r *Registry) Touch(sessionID, hmcID string) Info {
	info, _ := r.sessions.Compute(sessionID, func(old Info, loaded bool) (Info, bool) {
		old.SessionID = sessionID
		if hmcID != "" {
			old.HMCID = hmcID
		}
		old.LastSeen = r.now()
		return old, false
	})
	return info
}

// Get returns the state of a session.
func (r *Registry) Get(sessionID string) (Info, bool) {
	return r.sessions.Load(sessionID)
}

// Len returns the number of known sessions.
func (r *Registry) Len() int {
	return r.sessions.Size()
}

// Remove forgets a session and releases its locks. Removing an unknown
// session still releases locks the session might hold from before a restart.
func (r *Registry) Remove(sessionID string) (int, error) {
	r.sessions.Delete(sessionID)
	return r.releaseLocks(sessionID, "removed")
}

// Sweep removes every session idle for longer than the timeout and returns
// the ids of the removed sessions.
func (r *Registry) Sweep() []string {
	if r.timeout <= 0 {
		return nil
	}

	deadline := r.now().Add(-r.timeout)
	var expired []string
	r.sessions.Range(func(id string, info Info) bool {
		if info.LastSeen.Before(deadline) {
			expired = append(expired, id)
		}
		return true
	})

	removed := expired[:0]
	for _, id := range expired {
		// the session may have been touched since the scan
		deleted := false
		r.sessions.Compute(id, func(info Info, loaded bool) (Info, bool) {
			deleted = loaded && info.LastSeen.Before(deadline)
			return info, deleted || !loaded
		})
		if !deleted {
			continue
		}
		removed = append(removed, id)
		if _, err := r.releaseLocks(id, "timed out"); err != nil {
			log.Errorf("failed to release locks of session %s: %v", id, err)
		}
	}
	return removed
}

// Run sweeps idle sessions until ctx is done. It returns immediately if
// idle expiry is disabled.
func (r *Registry) Run(ctx context.Context) {
	if r.timeout <= 0 {
		return
	}

	interval := r.timeout / 2
	if interval < minSweepInterval {
		interval = minSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Infof("session sweeper started (timeout %s)", r.timeout)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

func (r *Registry) releaseLocks(sessionID, reason string) (int, error) {
	if r.release == nil {
		return 0, nil
	}
	n, err := r.release(sessionID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Infof("session %s %s, released %d transactions", sessionID, reason, n)
	}
	return n, nil
}
