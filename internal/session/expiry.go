package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/driftcode/agentcore/internal/store"
	"github.com/driftcode/agentcore/pkg/models"
)

// DefaultIdleTTL is how long a session may sit with no new events before
// the sweep archives it.
const DefaultIdleTTL = 24 * time.Hour

// ExpirySweeper periodically archives sessions that have been idle past a
// configured TTL, grounded on the teacher's internal/sessions/expiry.go
// idle-check concept, simplified here to a single TTL (this spec has no
// per-channel/conversation-type reset configuration to branch on).
type ExpirySweeper struct {
	store      store.Store
	orch       *Orchestrator
	ttl        time.Duration
	logger     *slog.Logger
	nowFunc    func() time.Time
	cronRunner *cron.Cron
}

// NewExpirySweeper builds a sweeper over s, evicting/archiving idle
// sessions older than ttl (DefaultIdleTTL if non-positive). orch may be nil
// if no in-memory active-session registry needs eviction alongside the
// store archive.
func NewExpirySweeper(s store.Store, orch *Orchestrator, ttl time.Duration, logger *slog.Logger) *ExpirySweeper {
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpirySweeper{store: s, orch: orch, ttl: ttl, logger: logger, nowFunc: time.Now}
}

// Start schedules the sweep on cronSpec (standard 5-field cron syntax) and
// returns immediately; call Stop to end it.
func (e *ExpirySweeper) Start(cronSpec string) error {
	e.cronRunner = cron.New()
	_, err := e.cronRunner.AddFunc(cronSpec, func() {
		e.Sweep(context.Background())
	})
	if err != nil {
		return err
	}
	e.cronRunner.Start()
	return nil
}

// Stop ends the scheduled sweep, if one was started.
func (e *ExpirySweeper) Stop() {
	if e.cronRunner != nil {
		e.cronRunner.Stop()
	}
}

// Sweep runs one archival pass immediately: every non-archived session
// whose head event predates now-ttl is archived, and evicted from the
// active registry if it happens to still be active.
func (e *ExpirySweeper) Sweep(ctx context.Context) (archived int, err error) {
	sessions, err := e.store.ListSessions(ctx, false, 0)
	if err != nil {
		return 0, err
	}

	cutoff := e.nowFunc().Add(-e.ttl)
	for _, sess := range sessions {
		lastActivity, ok := e.lastActivity(ctx, sess)
		if !ok || lastActivity.After(cutoff) {
			continue
		}

		if err := e.store.ArchiveSession(ctx, sess.ID, true); err != nil {
			e.logger.Warn("expiry sweep: archive failed", "session", sess.ID, "error", err)
			continue
		}
		if e.orch != nil {
			e.orch.Evict(sess.ID)
		}
		archived++
	}
	return archived, nil
}

// lastActivity is the timestamp of sess's most recent event, falling back
// to its creation time if the head event cannot be read.
func (e *ExpirySweeper) lastActivity(ctx context.Context, sess *models.Session) (time.Time, bool) {
	if sess.HeadEventID != "" {
		if head, err := e.store.GetEvent(ctx, sess.HeadEventID); err == nil {
			return head.Timestamp, true
		}
	}
	if !sess.CreatedAt.IsZero() {
		return sess.CreatedAt, true
	}
	return time.Time{}, false
}
