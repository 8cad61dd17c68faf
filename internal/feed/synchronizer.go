// Package feed keeps the ranked, filtered set of live broadcasts visible to
// the current user.
//
// Every delivery from the store is the complete current broadcast set and
// replaces the working set. A single owner goroutine serializes all mutations
// of the working set: listener deliveries, poll results, enrichment
// completions, mutes and location changes are posted to its inbox as
// closures. Readers observe immutable View snapshots. A failed push listener
// is re-subscribed with exponential backoff while the poller keeps the set
// current.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TimBasler1996/Melora-sub001/internal/auth"
	"github.com/TimBasler1996/Melora-sub001/internal/broadcast"
	"github.com/TimBasler1996/Melora-sub001/internal/docstore"
	"github.com/TimBasler1996/Melora-sub001/internal/geo"
	"github.com/TimBasler1996/Melora-sub001/internal/jobs"
	"github.com/TimBasler1996/Melora-sub001/internal/prefs"
	"github.com/TimBasler1996/Melora-sub001/internal/profile"
	"github.com/TimBasler1996/Melora-sub001/internal/ranking"
)

var (
	// ErrFeedUnavailable is the error state after a listener or query failure.
	// The visible set is empty while it is set.
	ErrFeedUnavailable = errors.New("feed unavailable")
	// ErrNotRunning is returned by operations that need a started synchronizer.
	ErrNotRunning = errors.New("feed synchronizer not running")
	// ErrInvalidLocation is returned for out-of-range coordinates.
	ErrInvalidLocation = errors.New("invalid location")
)

// Config configures a Synchronizer.
type Config struct {
	// PollInterval is the interval of the pull-and-reconcile fallback.
	PollInterval time.Duration
	// PollTimeout bounds a single poll. Zero means no bound beyond the interval.
	PollTimeout time.Duration
	// Logger for synchronizer activity.
	Logger *slog.Logger
	// Metrics for the synchronizer. Optional.
	Metrics *Metrics
	// JobMetrics for the poller. Optional.
	JobMetrics jobs.JobMetrics
	// ResubscribeDelay is the first wait before re-subscribing after a
	// listener failure. It doubles per failed attempt.
	ResubscribeDelay time.Duration
	// ResubscribeMaxDelay caps the re-subscribe backoff.
	ResubscribeMaxDelay time.Duration
}

// Re-subscribe backoff defaults.
const (
	DefaultResubscribeDelay    = time.Second
	DefaultResubscribeMaxDelay = 30 * time.Second
)

// Synchronizer owns the broadcast working set of one signed-in user.
type Synchronizer struct {
	config  Config
	store   docstore.Store
	session auth.Session
	prefs   *prefs.Manager
	cache   *profile.Cache
	logger  *slog.Logger
	metrics *Metrics

	// mu serializes Start and Stop and guards st while no owner is running.
	mu      sync.Mutex
	loop    atomic.Pointer[ownerLoop]
	poller  *jobs.Periodic
	cancel  context.CancelFunc
	workers sync.WaitGroup

	// lmu guards listener, which a re-subscription replaces while running.
	lmu      sync.Mutex
	listener docstore.Listener

	st  state
	pub *publisher
}

// state is the owner's working set.
type state struct {
	userID   string
	raw      []broadcast.Record
	location *geo.Point
	err      error
	gen      uint64
	pending  chan struct{}
	// resubscribing is set while a re-subscription is scheduled.
	resubscribing bool
}

type ownerLoop struct {
	ctx   context.Context
	inbox chan func()
	done  chan struct{}
}

// exited reports whether the owner goroutine has returned.
func (l *ownerLoop) exited() bool {
	select {
	case <-l.done:
		return true
	default:
	}
	return false
}

// NewSynchronizer creates a stopped Synchronizer.
func NewSynchronizer(config Config, store docstore.Store, session auth.Session, prefsManager *prefs.Manager, cache *profile.Cache) *Synchronizer {
	if config.PollInterval <= 0 {
		config.PollInterval = jobs.DefaultPollInterval
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.ResubscribeDelay <= 0 {
		config.ResubscribeDelay = DefaultResubscribeDelay
	}
	if config.ResubscribeMaxDelay < config.ResubscribeDelay {
		config.ResubscribeMaxDelay = max(DefaultResubscribeMaxDelay, config.ResubscribeDelay)
	}
	return &Synchronizer{
		config:  config,
		store:   store,
		session: session,
		prefs:   prefsManager,
		cache:   cache,
		logger:  config.Logger,
		metrics: config.Metrics,
		pub:     newPublisher(),
	}
}

// Start resolves the current user, loads their preferences, subscribes to the
// broadcasts collection and starts the poller. ctx bounds the lifetime of the
// subscription; when it ends the synchronizer stops as if Stop was called.
// Idempotent while started.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l := s.loop.Load(); l != nil {
		if !l.exited() {
			return nil
		}
		s.teardownLocked(l)
	}

	userID, err := auth.RequireUserID(ctx, s.session)
	if err != nil {
		return err
	}
	if err := s.prefs.Load(ctx, userID); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	l := &ownerLoop{
		ctx:   runCtx,
		inbox: make(chan func()),
		done:  make(chan struct{}),
	}

	s.st.userID = userID
	s.st.raw = nil
	s.st.err = nil
	s.st.gen++
	s.publishLocked()

	go s.own(l)
	s.loop.Store(l)

	listener, err := s.store.Listen(runCtx, docstore.CollectionBroadcasts, s.listenFunc(l))
	if err != nil {
		cancel()
		<-l.done
		s.loop.Store(nil)
		s.metrics.incFeedErrors(SourceListener)
		return fmt.Errorf("%w: subscribe: %w", ErrFeedUnavailable, err)
	}

	poller := jobs.NewPeriodic(jobs.PeriodicConfig{
		JobType:  jobs.JobTypeFeedPoll,
		Interval: s.config.PollInterval,
		Timeout:  s.config.PollTimeout,
		Logger:   s.logger,
		Metrics:  s.config.JobMetrics,
	}, func(ctx context.Context) error {
		return s.refresh(ctx, l, SourcePoll)
	})
	_ = poller.Start(runCtx)

	s.lmu.Lock()
	if s.listener == nil {
		s.listener = listener
	} else {
		// A re-subscription already replaced the initial listener.
		listener.Stop()
	}
	s.lmu.Unlock()
	s.poller = poller
	s.cancel = cancel
	go s.reap(l)

	s.logger.Info("feed synchronizer started",
		"user_id", userID,
		"poll_interval", s.config.PollInterval)
	return nil
}

// Stop unsubscribes the listener, stops the poller, cancels in-flight
// enrichment and waits for the owner goroutine to exit. Safe to call
// repeatedly. The last view and location are kept.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.loop.Load()
	if l == nil {
		return
	}
	s.teardownLocked(l)
	s.logger.Info("feed synchronizer stopped", "user_id", s.st.userID)
}

// reap tears the synchronizer down when the context given to Start ends
// without a Stop.
func (s *Synchronizer) reap(l *ownerLoop) {
	<-l.done

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loop.Load() != l {
		return
	}
	s.teardownLocked(l)
	s.logger.Info("feed synchronizer stopped", "user_id", s.st.userID, "reason", "context done")
}

// teardownLocked releases everything Start acquired for l. Callers hold mu.
func (s *Synchronizer) teardownLocked(l *ownerLoop) {
	s.cancel()
	s.poller.Stop()
	<-l.done
	s.workers.Wait()

	if listener := s.swapListener(nil); listener != nil {
		listener.Stop()
	}
	s.closePending()
	s.st.resubscribing = false
	s.loop.Store(nil)
	s.poller = nil
	s.cancel = nil
}

// running returns the live owner loop, or nil.
func (s *Synchronizer) running() *ownerLoop {
	l := s.loop.Load()
	if l == nil || l.exited() {
		return nil
	}
	return l
}

// IsRunning reports whether the synchronizer is started.
func (s *Synchronizer) IsRunning() bool {
	return s.running() != nil
}

// View returns the latest visible set.
func (s *Synchronizer) View() View {
	return s.pub.current()
}

// Subscribe returns a channel that always holds the latest View, starting with
// the current one, and a function that ends the subscription.
func (s *Synchronizer) Subscribe() (<-chan View, func()) {
	return s.pub.subscribe()
}

// Refresh reads the full broadcasts collection and reconciles the working set
// with it, exactly as a listener delivery would. It returns once the new set
// has been published or superseded by a newer delivery.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	l := s.running()
	if l == nil {
		return ErrNotRunning
	}
	return s.refresh(ctx, l, SourceManual)
}

// UpdateLocation sets the viewer location and re-ranks the visible set without
// a resync. A nil point clears the location.
func (s *Synchronizer) UpdateLocation(ctx context.Context, p *geo.Point) error {
	var loc *geo.Point
	if p != nil {
		if !p.Valid() {
			return fmt.Errorf("%w: %s", ErrInvalidLocation, p)
		}
		cp := *p
		loc = &cp
	}
	err := s.exec(ctx, func() {
		s.st.location = loc
		s.publishLocked()
	})
	if err == nil {
		if loc != nil {
			s.logger.Debug("viewer location updated", "cell", loc.Cell())
		} else {
			s.logger.Debug("viewer location cleared")
		}
	}
	return err
}

// Location returns the viewer location, or nil when unknown.
func (s *Synchronizer) Location(ctx context.Context) (*geo.Point, error) {
	var loc *geo.Point
	err := s.exec(ctx, func() { loc = s.st.location })
	return loc, err
}

// MuteUser mutes id and removes its broadcasts from the visible set at once.
func (s *Synchronizer) MuteUser(ctx context.Context, id string) error {
	return s.mute(ctx, id, s.prefs.MuteUser, s.prefs.IsUserMuted)
}

// MuteTrack mutes id and removes its broadcasts from the visible set at once.
func (s *Synchronizer) MuteTrack(ctx context.Context, id string) error {
	return s.mute(ctx, id, s.prefs.MuteTrack, s.prefs.IsTrackMuted)
}

// mute adds id through add and republishes. A failed write that still left id
// muted in memory prunes the visible set and returns the write error.
func (s *Synchronizer) mute(ctx context.Context, id string, add func(context.Context, string) error, muted func(string) bool) error {
	err := add(ctx, id)
	if err != nil && !muted(id) {
		return err
	}
	if execErr := s.exec(ctx, s.publishLocked); execErr != nil {
		return execErr
	}
	return err
}

// NearbyNow runs a one-shot full read through the same filter, enrich and rank
// pipeline and returns the result without touching the working set.
func (s *Synchronizer) NearbyNow(ctx context.Context) ([]broadcast.Enriched, error) {
	userID, err := auth.RequireUserID(ctx, s.session)
	if err != nil {
		return nil, err
	}
	if s.prefs.UserID() != userID {
		if err := s.prefs.Load(ctx, userID); err != nil {
			return nil, err
		}
	}

	docs, err := s.store.GetAll(ctx, docstore.CollectionBroadcasts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFeedUnavailable, err)
	}
	records, skipped := decodeRecords(docs)
	s.metrics.addDecodeErrors(skipped)

	loc, err := s.Location(ctx)
	if err != nil {
		return nil, err
	}

	excl := exclusions{}
	visible := filterRecords(records, userID, s.prefs.Mutes(), excl)
	profiles := s.cache.Resolve(ctx, authorIDs(visible))
	items := joinProfiles(visible, func(id string) (broadcast.Profile, bool) {
		p, ok := profiles[id]
		return p, ok
	}, excl)
	return ranking.Rank(loc, items), nil
}

// own runs posted closures until the loop context is canceled.
func (s *Synchronizer) own(l *ownerLoop) {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			return
		case fn := <-l.inbox:
			fn()
		}
	}
}

// post hands fn to the owner. Returns false if the owner has exited.
func (s *Synchronizer) post(l *ownerLoop, fn func()) bool {
	select {
	case l.inbox <- fn:
		return true
	case <-l.done:
		return false
	}
}

// exec runs fn on the owner when running, otherwise under mu. It returns once
// fn has run. An owner that exited before teardown counts as not running.
func (s *Synchronizer) exec(ctx context.Context, fn func()) error {
	for {
		if l := s.running(); l != nil {
			reply := make(chan struct{})
			select {
			case l.inbox <- func() { defer close(reply); fn() }:
				<-reply
				return nil
			case <-l.done:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		s.mu.Lock()
		if s.running() == nil {
			fn()
			s.mu.Unlock()
			return nil
		}
		// Restarted while waiting for mu.
		s.mu.Unlock()
	}
}

func (s *Synchronizer) listenFunc(l *ownerLoop) docstore.ListenFunc {
	return func(docs []docstore.Document, err error) {
		if err != nil {
			s.post(l, func() { s.listenerFailed(l, err) })
			return
		}
		records, skipped := decodeRecords(docs)
		s.metrics.addDecodeErrors(skipped)
		s.post(l, func() { s.apply(l, SourceListener, records, nil) })
	}
}

func (s *Synchronizer) refresh(ctx context.Context, l *ownerLoop, source string) error {
	docs, err := s.store.GetAll(ctx, docstore.CollectionBroadcasts)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.post(l, func() { s.fail(source, err) })
		return fmt.Errorf("%w: %w", ErrFeedUnavailable, err)
	}
	records, skipped := decodeRecords(docs)
	s.metrics.addDecodeErrors(skipped)

	done := make(chan struct{})
	if !s.post(l, func() { s.apply(l, source, records, done) }) {
		return ErrNotRunning
	}
	select {
	case <-done:
		return s.pub.current().Err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrNotRunning
	}
}

// apply replaces the working set with records. Runs on the owner.
// The set is published once its missing profiles have been resolved. done, if
// non-nil, is closed after that publish or when a newer delivery supersedes
// this one.
func (s *Synchronizer) apply(l *ownerLoop, source string, records []broadcast.Record, done chan struct{}) {
	s.st.gen++
	gen := s.st.gen
	s.closePending()

	s.st.raw = records
	s.st.err = nil
	s.metrics.incSnapshots(source)

	visible := filterRecords(records, s.st.userID, s.prefs.Mutes(), exclusions{})
	missing := s.cache.Missing(authorIDs(visible))
	if len(missing) == 0 {
		s.publishLocked()
		if done != nil {
			close(done)
		}
		return
	}

	s.st.pending = done
	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		start := time.Now()
		s.cache.Resolve(l.ctx, missing)
		s.metrics.observeEnrichment(time.Since(start).Seconds())

		s.post(l, func() {
			if gen != s.st.gen {
				s.metrics.incStale()
				s.logger.Debug("discarding stale enrichment", "generation", gen, "current", s.st.gen)
				return
			}
			s.publishLocked()
			s.closePending()
		})
	}()
}

// fail enters the error state and clears the visible set. Runs on the owner.
func (s *Synchronizer) fail(source string, err error) {
	s.st.gen++
	s.closePending()
	s.st.raw = nil
	s.st.err = fmt.Errorf("%w: %w", ErrFeedUnavailable, err)
	s.metrics.incFeedErrors(source)
	s.logger.Error("feed unavailable", "source", source, "error", err)
	s.publishLocked()
}

// listenerFailed enters the error state and schedules a re-subscription.
// Runs on the owner.
func (s *Synchronizer) listenerFailed(l *ownerLoop, err error) {
	s.fail(SourceListener, err)
	if s.st.resubscribing || l.ctx.Err() != nil {
		return
	}
	s.st.resubscribing = true
	s.workers.Add(1)
	go s.resubscribe(l)
}

// resubscribe re-establishes the push listener, retrying with exponential
// backoff until it succeeds or the loop ends.
func (s *Synchronizer) resubscribe(l *ownerLoop) {
	defer s.workers.Done()

	for attempt := 0; ; attempt++ {
		delay := s.backoff(attempt)
		s.logger.Info("scheduling feed resubscribe", "delay", delay, "attempt", attempt+1)
		select {
		case <-l.ctx.Done():
			return
		case <-time.After(delay):
		}

		// Failures of the new listener may schedule the next re-subscription.
		if !s.post(l, func() { s.st.resubscribing = false }) {
			return
		}
		listener, err := s.store.Listen(l.ctx, docstore.CollectionBroadcasts, s.listenFunc(l))
		if err != nil {
			if l.ctx.Err() != nil {
				return
			}
			s.metrics.incFeedErrors(SourceListener)
			s.logger.Warn("feed resubscribe failed", "error", err, "attempt", attempt+1)
			continue
		}

		if prev := s.swapListener(listener); prev != nil {
			prev.Stop()
		}
		s.logger.Info("feed listener resubscribed", "attempt", attempt+1)
		return
	}
}

// backoff returns the re-subscribe delay before the given attempt.
func (s *Synchronizer) backoff(attempt int) time.Duration {
	delay := s.config.ResubscribeDelay
	for i := 0; i < attempt && delay < s.config.ResubscribeMaxDelay; i++ {
		delay *= 2
	}
	return min(delay, s.config.ResubscribeMaxDelay)
}

// swapListener installs next as the active listener and returns the previous one.
func (s *Synchronizer) swapListener(next docstore.Listener) docstore.Listener {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	prev := s.listener
	s.listener = next
	return prev
}

func (s *Synchronizer) closePending() {
	if s.st.pending != nil {
		close(s.st.pending)
		s.st.pending = nil
	}
}

// publishLocked rebuilds the visible set from the working set, the profile
// cache, the current mutes and the location, and publishes it. Must run on
// the owner or under mu while stopped.
func (s *Synchronizer) publishLocked() {
	excl := exclusions{}
	visible := filterRecords(s.st.raw, s.st.userID, s.prefs.Mutes(), excl)
	items := ranking.Rank(s.st.location, joinProfiles(visible, s.cache.Get, excl))

	for reason, n := range excl {
		s.metrics.addExcluded(reason, n)
	}
	s.metrics.setVisible(len(items))

	var loc *geo.Point
	if s.st.location != nil {
		cp := *s.st.location
		loc = &cp
	}
	s.pub.publish(View{
		Items:      items,
		Err:        s.st.err,
		Location:   loc,
		Generation: s.st.gen,
		UpdatedAt:  time.Now(),
	})
}
