package overlay

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/unklstewy/sky-overlay/pkg/feed"
	"github.com/unklstewy/sky-overlay/pkg/icon"
)

// FetchReason tags why a fetch cycle was requested.
type FetchReason string

const (
	// ReasonStart is the initial fetch after the overlay starts.
	ReasonStart FetchReason = "start"

	// ReasonViewport follows a pan/zoom settling.
	ReasonViewport FetchReason = "viewport"

	// ReasonIdle is the background re-poll cadence.
	ReasonIdle FetchReason = "idle"
)

// SchedulerConfig holds the fetch-scheduling knobs. Zero values
// select the documented defaults; tests shrink them to milliseconds.
type SchedulerConfig struct {
	// MinInterval is the minimum spacing between fetch starts
	// (default 1s)
	MinInterval time.Duration

	// Backoff is the fixed wait applied after any failure
	// (default 2s)
	Backoff time.Duration

	// Debounce is the settle time after interaction ends before a
	// viewport fetch fires (default 300ms)
	Debounce time.Duration

	// IdleInterval is the background re-poll cadence while no
	// interaction is in progress (default 5s)
	IdleInterval time.Duration

	// RequestTimeout bounds one feed request (default 10s)
	RequestTimeout time.Duration
}

// DefaultSchedulerConfig returns the production timings.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		MinInterval:    time.Second,
		Backoff:        2 * time.Second,
		Debounce:       300 * time.Millisecond,
		IdleInterval:   5 * time.Second,
		RequestTimeout: 10 * time.Second,
	}
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	d := DefaultSchedulerConfig()
	if c.MinInterval <= 0 {
		c.MinInterval = d.MinInterval
	}
	if c.Backoff <= 0 {
		c.Backoff = d.Backoff
	}
	if c.Debounce <= 0 {
		c.Debounce = d.Debounce
	}
	if c.IdleInterval <= 0 {
		c.IdleInterval = d.IdleInterval
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	return c
}

// SchedulerState is the coarse state of the fetch machine.
type SchedulerState int

const (
	StateIdle SchedulerState = iota
	StateScheduled
	StateInFlight
	StateBackoff
)

func (s SchedulerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScheduled:
		return "scheduled"
	case StateInFlight:
		return "in-flight"
	case StateBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time view of the scheduler for status
// displays and tests.
type Snapshot struct {
	State        SchedulerState
	LastFetchAt  time.Time
	BackoffUntil time.Time
	LastContext  FetchContext
	HaveContext  bool
	Fetches      int
	Failures     int
}

type schedEventKind int

const (
	evInteractionStart schedEventKind = iota
	evInteractionEnd
	evRequestFetch
	evFetchDone
)

type fetchResult struct {
	gen  int
	ctx  FetchContext
	rows []feed.Record
	err  error
}

type schedEvent struct {
	kind   schedEventKind
	reason FetchReason
	result *fetchResult
}

// scheduler is the single-flight fetch state machine. One goroutine
// owns all of its state; external callers post events, so no locks
// guard the transitions and ordering holds by construction: a poll's
// marker updates and eviction run to completion inside one event
// before the next is handled.
type scheduler struct {
	cfg     SchedulerConfig
	client  *feed.Client
	host    HostMap
	markers *Markers
	encoder *icon.Encoder
	logger  *log.Logger

	events   chan schedEvent
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	// Loop-owned state. Never touched outside run().
	gen            int
	inFlight       bool
	cancelInFlight context.CancelCauseFunc
	lastFetchAt    time.Time
	backoffUntil   time.Time
	lastContext    FetchContext
	haveContext    bool
	interacting    bool
	fetches        int
	failures       int

	debounceTimer *time.Timer
	delayedTimer  *time.Timer
	delayedReason FetchReason
	idleTimer     *time.Timer

	snapMu sync.Mutex
	snap   Snapshot
}

func newScheduler(cfg SchedulerConfig, client *feed.Client, host HostMap, markers *Markers, encoder *icon.Encoder, logger *log.Logger) *scheduler {
	return &scheduler{
		cfg:     cfg.withDefaults(),
		client:  client,
		host:    host,
		markers: markers,
		encoder: encoder,
		logger:  logger,
		events:  make(chan schedEvent, 16),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// start launches the loop and issues the initial fetch.
func (s *scheduler) start() {
	go s.run()
	s.post(schedEvent{kind: evRequestFetch, reason: ReasonStart})
}

// stop shuts the loop down, cancelling any in-flight request. Safe to
// call more than once.
func (s *scheduler) stop() {
	s.stopOnce.Do(func() { close(s.quit) })
	<-s.done
}

// interactionStart, interactionEnd, and requestFetch are the external
// entry points; they post into the loop and never block after stop.
func (s *scheduler) interactionStart() { s.post(schedEvent{kind: evInteractionStart}) }
func (s *scheduler) interactionEnd()   { s.post(schedEvent{kind: evInteractionEnd}) }
func (s *scheduler) requestFetchAsync(reason FetchReason) {
	s.post(schedEvent{kind: evRequestFetch, reason: reason})
}

func (s *scheduler) post(ev schedEvent) {
	select {
	case s.events <- ev:
	case <-s.quit:
	}
}

// Snapshot returns the last published scheduler state.
func (s *scheduler) Snapshot() Snapshot {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	return s.snap
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func stopTimer(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func (s *scheduler) run() {
	defer close(s.done)

	s.armIdle()
	for {
		select {
		case <-s.quit:
			s.shutdown()
			return
		case ev := <-s.events:
			s.handle(ev)
		case <-timerC(s.debounceTimer):
			s.debounceTimer = nil
			s.onDebounce()
		case <-timerC(s.delayedTimer):
			s.delayedTimer = nil
			s.requestFetch(s.delayedReason)
		case <-timerC(s.idleTimer):
			s.idleTimer = nil
			s.onIdle()
		}
		s.publishSnapshot()
	}
}

func (s *scheduler) shutdown() {
	if s.inFlight {
		s.cancelInFlight(feed.ErrSuperseded)
		s.cancelInFlight = nil
		s.inFlight = false
	}
	stopTimer(&s.debounceTimer)
	stopTimer(&s.delayedTimer)
	stopTimer(&s.idleTimer)
}

func (s *scheduler) handle(ev schedEvent) {
	switch ev.kind {
	case evInteractionStart:
		// Suspend idle polling and any pending debounce. The
		// in-flight request, if any, keeps running.
		s.interacting = true
		stopTimer(&s.idleTimer)
		stopTimer(&s.debounceTimer)
	case evInteractionEnd:
		// The projection may have changed under the markers.
		s.markers.ApplyRotations()
		stopTimer(&s.debounceTimer)
		s.debounceTimer = time.NewTimer(s.cfg.Debounce)
	case evRequestFetch:
		s.requestFetch(ev.reason)
	case evFetchDone:
		s.onFetchDone(ev.result)
	}
}

func (s *scheduler) onDebounce() {
	s.interacting = false
	s.requestFetch(ReasonViewport)
	s.armIdle()
}

func (s *scheduler) onIdle() {
	s.requestFetch(ReasonIdle)
	s.armIdle()
}

func (s *scheduler) armIdle() {
	if s.interacting {
		return
	}
	stopTimer(&s.idleTimer)
	s.idleTimer = time.NewTimer(s.cfg.IdleInterval)
}

// requestFetch is the single entry to a new fetch cycle. It clears
// any scheduled cycle and supersedes any in-flight request before
// either starting immediately or arming a delayed start, so at most
// one logical cycle is ever pending.
func (s *scheduler) requestFetch(reason FetchReason) {
	stopTimer(&s.delayedTimer)

	if s.inFlight {
		s.cancelInFlight(feed.ErrSuperseded)
		s.cancelInFlight = nil
		s.inFlight = false
	}

	now := time.Now()
	earliest := s.lastFetchAt.Add(s.cfg.MinInterval)
	if s.backoffUntil.After(earliest) {
		earliest = s.backoffUntil
	}
	if wait := earliest.Sub(now); wait > 0 {
		s.delayedReason = reason
		s.delayedTimer = time.NewTimer(wait)
		return
	}
	s.startFetch(reason, now)
}

func (s *scheduler) startFetch(reason FetchReason, now time.Time) {
	fc, err := buildFetchContext(s.host)
	if err != nil {
		// Treated like a transient failure: this cycle only.
		s.logger.Printf("overlay: fetch (%s) aborted: %v", reason, err)
		s.failures++
		s.backoffUntil = now.Add(s.cfg.Backoff)
		return
	}

	s.gen++
	s.lastFetchAt = now
	s.inFlight = true
	s.fetches++
	gen := s.gen

	ctx, cancel := context.WithCancelCause(context.Background())
	tctx, cancelTimeout := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	s.cancelInFlight = cancel

	go func() {
		defer cancelTimeout()
		defer cancel(nil)
		rows, _, err := s.client.Fetch(tctx, fc.Center, fc.RadiusNM)
		s.post(schedEvent{kind: evFetchDone, result: &fetchResult{gen: gen, ctx: fc, rows: rows, err: err}})
	}()
}

func (s *scheduler) onFetchDone(res *fetchResult) {
	// A superseded request's result must never be applied, success
	// or not. Supersession clears inFlight and the replacing cycle
	// bumps gen, so either check catches a result that raced the
	// cancellation.
	if res.gen != s.gen || !s.inFlight {
		return
	}
	s.inFlight = false
	s.cancelInFlight = nil
	now := time.Now()

	switch {
	case res.err == nil:
		s.backoffUntil = time.Time{}
		s.apply(res.ctx, res.rows, now)
	case errors.Is(res.err, feed.ErrSuperseded):
		// Not an error: fully silent, no backoff.
	case errors.Is(res.err, feed.ErrTimeout):
		s.logger.Printf("overlay: warning: %v", res.err)
		s.failures++
		s.backoffUntil = now.Add(s.cfg.Backoff)
	default:
		s.logger.Printf("overlay: fetch failed: %v", res.err)
		s.failures++
		s.backoffUntil = now.Add(s.cfg.Backoff)
	}
}

// apply feeds one poll's rows through extraction and encoding, then
// runs eviction against the just-completed context. Rows that fail
// extraction are skipped individually. Runs to completion before the
// loop handles another event.
func (s *scheduler) apply(fc FetchContext, rows []feed.Record, now time.Time) {
	for _, rec := range rows {
		identity, ok := rec.Identity()
		if !ok {
			continue
		}
		p, ok := rec.Position()
		if !ok {
			continue
		}
		s.markers.Upsert(identity, p, s.encoder.Encode(rec), now)
	}
	s.markers.Evict(now, fc)
	s.markers.ApplyRotations()
	s.lastContext = fc
	s.haveContext = true
}

func (s *scheduler) publishSnapshot() {
	state := StateIdle
	now := time.Now()
	switch {
	case s.inFlight:
		state = StateInFlight
	case s.delayedTimer != nil:
		state = StateScheduled
	case s.backoffUntil.After(now):
		state = StateBackoff
	}

	s.snapMu.Lock()
	s.snap = Snapshot{
		State:        state,
		LastFetchAt:  s.lastFetchAt,
		BackoffUntil: s.backoffUntil,
		LastContext:  s.lastContext,
		HaveContext:  s.haveContext,
		Fetches:      s.fetches,
		Failures:     s.failures,
	}
	s.snapMu.Unlock()
}
