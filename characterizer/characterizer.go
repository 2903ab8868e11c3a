// Package characterizer implements the streaming state machine that
// ingests a live LidarPoint stream, separates a static background from a
// foreground object across dedicated phases, and hands the object's
// points to the characterize package once a phase closes.
//
// newPoint runs on whatever goroutine drives the scanner; the exported
// transition methods (DefineBackground, DefineObject, Wait, Stop) are
// called from a separate control goroutine. Both sides are synchronized
// through a single mutex guarding state and the two accumulators --
// simpler to reason about than a lock-free hand-off, and the data volumes
// here (point-at-a-time dispatch, not a hot per-coordinate loop) don't
// need one.
package characterizer

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/ilMartoo/lidar-anomaly-detector/characterize"
	"github.com/ilMartoo/lidar-anomaly-detector/config"
	"github.com/ilMartoo/lidar-anomaly-detector/geom"
	"github.com/ilMartoo/lidar-anomaly-detector/octree"
	"github.com/ilMartoo/lidar-anomaly-detector/scanner"
)

// State is one of the four phases a Characterizer session moves through.
type State int

const (
	// Stopped is the initial and resting state; new_point drops everything.
	Stopped State = iota
	// DefiningBackground accumulates points into the background map.
	DefiningBackground
	// DefiningObject accumulates points into the sliding object window.
	DefiningObject
	// Discarding drops points for a fixed span before returning to
	// whichever state was active when Wait was called.
	Discarding
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case DefiningBackground:
		return "DefiningBackground"
	case DefiningObject:
		return "DefiningObject"
	case Discarding:
		return "Discarding"
	default:
		return "Unknown"
	}
}

// ErrInvalidState is returned when a transition is requested from an
// incompatible state (e.g. DefineObject while still DefiningBackground).
var ErrInvalidState = errors.New("characterizer: invalid state transition")

// ErrCancelled is returned by a blocked phase operation that observed a
// Stop() call before its own completion condition.
var ErrCancelled = errors.New("characterizer: phase cancelled")

// Stats is a point-admission snapshot, adding the small observability
// original_source's isChrono/timing toggle gestures at but never exposes
// directly.
type Stats struct {
	Admitted             int64
	RejectedReflectivity int64
	RejectedBackground   int64
}

// discardWindow tracks a pending Wait() call: how long to discard for,
// which state to restore once the window elapses, and the interrupted
// phase's own completion channel/cancel func, saved here rather than left
// in the shared phaseDone/phaseDoneOnce/phaseCancel fields so Wait's own
// wait doesn't clobber a DefineBackground/DefineObject call already
// blocked on them.
type discardWindow struct {
	active     bool
	start      geom.Timestamp
	hasStart   bool
	durationNs int64
	prior      State

	savedDone   chan struct{}
	savedOnce   *sync.Once
	savedCancel context.CancelFunc
}

// Characterizer drives one session against a scanner.Source.
type Characterizer struct {
	logger golog.Logger
	cfg    config.Parameters
	clk    clock.Clock
	src    scanner.Source

	mu              sync.Mutex
	state           State
	backgroundAccum []geom.Point
	backgroundIdx   *octree.Octree
	objectAccum     []geom.LidarPoint
	discard         discardWindow

	phaseHasStart bool
	phaseStart    geom.Timestamp
	phaseDuration int64
	phaseDone     chan struct{}
	phaseDoneOnce *sync.Once
	phaseCancel   context.CancelFunc

	admitted             atomic.Int64
	rejectedReflectivity atomic.Int64
	rejectedBackground   atomic.Int64

	scannerDone chan struct{}
	scannerCode scanner.ScanCode
	scannerErr  error
}

// Option configures a Characterizer at construction.
type Option func(*Characterizer)

// WithLogger attaches a logger; the default is golog.NewDevelopmentLogger.
func WithLogger(logger golog.Logger) Option {
	return func(c *Characterizer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the wall clock used for HardWallTimeout, for tests.
func WithClock(clk clock.Clock) Option {
	return func(c *Characterizer) {
		if clk != nil {
			c.clk = clk
		}
	}
}

// WithBackDistanceMeters overrides cfg.BackDistance, supplied in meters and
// converted to the millimeters BackDistance is stored in -- the same
// unit-conversion-at-the-boundary shape original_source's
// ObjectCharacterizer.hh uses for its setter (meters in, millimeters
// stored).
func WithBackDistanceMeters(m float64) Option {
	return func(c *Characterizer) { c.cfg.BackDistance = m * 1000 }
}

// New constructs a Characterizer in the Stopped state. src must not have
// had SetCallback or Init called yet; Init does both.
func New(src scanner.Source, cfg config.Parameters, opts ...Option) (*Characterizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "characterizer: invalid parameters")
	}
	c := &Characterizer{
		logger:      golog.NewDevelopmentLogger("characterizer"),
		cfg:         cfg,
		clk:         clock.New(),
		src:         src,
		state:       Stopped,
		scannerDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Init wires this Characterizer's newPoint as the source's callback,
// initializes the source, and starts it reading in the background for the
// lifetime of the session: the scanner goroutine calls newPoint
// independently of whatever phase the control goroutine has requested.
func (c *Characterizer) Init() error {
	c.src.SetCallback(c.newPoint)
	if err := c.src.Init(); err != nil {
		return errors.Wrap(scanner.ErrInit, err.Error())
	}
	c.mu.Lock()
	c.scannerDone = make(chan struct{})
	c.mu.Unlock()
	go c.runScanner()
	return nil
}

func (c *Characterizer) runScanner() {
	code, err := c.src.Start()
	c.mu.Lock()
	c.scannerCode = code
	c.scannerErr = err
	c.mu.Unlock()
	close(c.scannerDone)
}

// Stats returns a point-admission snapshot.
func (c *Characterizer) Stats() Stats {
	return Stats{
		Admitted:             c.admitted.Load(),
		RejectedReflectivity: c.rejectedReflectivity.Load(),
		RejectedBackground:   c.rejectedBackground.Load(),
	}
}

// State returns the current phase.
func (c *Characterizer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// DefineBackground enters DefiningBackground for cfg.BackFrame of
// timestamp span. Every admitted point becomes part of the background
// index built once the phase closes.
func (c *Characterizer) DefineBackground(ctx context.Context) error {
	derived, done, err := c.beginPhase(ctx, DefiningBackground, c.cfg.BackFrame)
	if err != nil {
		return err
	}
	waitErr := c.waitFor(derived, done)

	c.mu.Lock()
	pts := c.backgroundAccum
	c.backgroundAccum = nil
	c.state = Stopped
	c.phaseCancel = nil
	c.mu.Unlock()

	// Background data is kept across cancellation, unlike the object
	// accumulator, so the index is built from whatever arrived regardless
	// of waitErr.
	idx, buildErr := octree.Build(pts, octree.WithLogger(c.logger))
	if buildErr == nil {
		c.mu.Lock()
		c.backgroundIdx = idx
		c.mu.Unlock()
	}

	if waitErr != nil {
		return waitErr
	}
	if buildErr != nil {
		return errors.Wrap(buildErr, "characterizer: building background index")
	}
	c.logger.Debugw("background phase complete", "points", len(pts))
	return nil
}

// DefineObject enters DefiningObject for cfg.ObjFrame of timestamp span,
// admitting points that pass the reflectivity and background-distance
// filters into a sliding window, then hands the window to characterize.Build.
func (c *Characterizer) DefineObject(ctx context.Context) (*characterize.CharacterizedObject, error) {
	derived, done, err := c.beginPhase(ctx, DefiningObject, c.cfg.ObjFrame)
	if err != nil {
		return nil, err
	}
	waitErr := c.waitFor(derived, done)

	c.mu.Lock()
	lidarPts := c.objectAccum
	c.objectAccum = nil
	c.state = Stopped
	c.phaseCancel = nil
	c.mu.Unlock()

	if waitErr != nil {
		return nil, waitErr
	}

	pts := make([]geom.Point, len(lidarPts))
	for i, lp := range lidarPts {
		pts[i] = lp.Point
	}
	obj, err := characterize.Build(pts, c.cfg, c.logger)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// Wait enters Discarding for d of timestamp span, dropping every incoming
// point, then restores whichever state was active when Wait was called.
// Wait is callable from any active phase, not only Stopped: the phase it
// interrupts stays parked in its own DefineBackground/DefineObject call,
// blocked on the phaseDone/phaseCancel that call installed. Those are
// saved into discard and restored by onDiscardPoint once the window
// elapses, rather than shared with this call's own wait -- sharing them
// would let this Wait's completion fire the interrupted call's already-
// spent sync.Once, leaving it parked until HardWallTimeout.
func (c *Characterizer) Wait(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	if c.state == Discarding {
		c.mu.Unlock()
		return errors.Wrap(ErrInvalidState, "already discarding")
	}
	prior := c.state
	c.discard = discardWindow{
		durationNs:  d.Nanoseconds(),
		prior:       prior,
		savedDone:   c.phaseDone,
		savedOnce:   c.phaseDoneOnce,
		savedCancel: c.phaseCancel,
	}
	c.state = Discarding
	derived, cancel := context.WithCancel(ctx)
	c.phaseCancel = cancel
	done := make(chan struct{})
	c.phaseDone = done
	c.phaseDoneOnce = new(sync.Once)
	c.mu.Unlock()

	err := c.waitFor(derived, done)

	// Once the window has closed, onDiscardPoint has already put the
	// interrupted phase's cancel func back; leave it for Stop to use.
	c.mu.Lock()
	if c.state == Discarding {
		c.phaseCancel = nil
	}
	c.mu.Unlock()
	return err
}

// Stop is the universal cancel: it transitions to Stopped promptly.
// Accumulated object data is discarded on cancellation while accumulated
// background data is kept. If a Wait() discard window is currently
// interrupting an active phase, Stop cancels both the discard's own wait
// and the interrupted phase's wait, rather than leaving the latter parked
// with no cancel func reachable from here.
func (c *Characterizer) Stop() {
	c.mu.Lock()
	state := c.state
	interruptedObject := state == DefiningObject
	var savedCancel context.CancelFunc
	if state == Discarding {
		interruptedObject = c.discard.prior == DefiningObject
		savedCancel = c.discard.savedCancel
		c.discard.savedCancel = nil
	}
	c.state = Stopped
	if interruptedObject {
		c.objectAccum = nil
	}
	cancel := c.phaseCancel
	c.phaseCancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if savedCancel != nil {
		savedCancel()
	}
}

// beginPhase validates the Stopped precondition, installs the new phase's
// bookkeeping, and returns a context Stop() can cancel along with the
// channel that closes once the phase's duration elapses.
func (c *Characterizer) beginPhase(ctx context.Context, want State, duration time.Duration) (context.Context, chan struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Stopped {
		return nil, nil, errors.Wrapf(ErrInvalidState, "cannot enter %v from %v", want, c.state)
	}
	c.state = want
	c.phaseHasStart = false
	c.phaseDuration = duration.Nanoseconds()
	done := make(chan struct{})
	c.phaseDone = done
	c.phaseDoneOnce = new(sync.Once)

	derived, cancel := context.WithCancel(ctx)
	c.phaseCancel = cancel
	return derived, done, nil
}

// waitFor blocks until done closes, ctx is cancelled (Stop was called or
// the caller's own context expired), cfg.HardWallTimeout of wall-clock time
// has passed since the wait began (incoming points do not reset it), or the
// scanner goroutine itself exits with an error -- three watchers
// supervised by an errgroup the way services/motion/builtin/replan.go
// supervises its obstacle watchers.
func (c *Characterizer) waitFor(ctx context.Context, done <-chan struct{}) error {
	// errgroup only cancels the sibling watchers when one returns an error,
	// so phase completion is reported as errPhaseDone and mapped to nil.
	errPhaseDone := errors.New("characterizer: phase done")
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-done:
			return errPhaseDone
		case <-gctx.Done():
			return gctx.Err()
		}
	})
	g.Go(func() error {
		timer := c.clk.Timer(c.cfg.HardWallTimeout)
		defer timer.Stop()
		select {
		case <-timer.C:
			return scanner.ErrRead
		case <-gctx.Done():
			return gctx.Err()
		}
	})
	g.Go(func() error {
		select {
		case <-c.scannerDone:
			c.mu.Lock()
			code, scanErr := c.scannerCode, c.scannerErr
			c.mu.Unlock()
			if scanErr != nil {
				return errors.Wrap(scanner.ErrRead, scanErr.Error())
			}
			if code == scanner.Error {
				return scanner.ErrRead
			}
			return nil
		case <-gctx.Done():
			return gctx.Err()
		}
	})
	err := g.Wait()
	if err == errPhaseDone {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return ErrCancelled
	}
	return err
}

// newPoint is the scanner-side dispatch, routing an incoming point to the
// accumulator for whichever phase is currently active.
func (c *Characterizer) newPoint(lp geom.LidarPoint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Stopped:
		return
	case DefiningBackground:
		c.onBackgroundPoint(lp)
	case DefiningObject:
		c.onObjectPoint(lp)
	case Discarding:
		c.onDiscardPoint(lp)
	}
}

func (c *Characterizer) onBackgroundPoint(lp geom.LidarPoint) {
	if lp.Reflectivity < c.cfg.MinReflectivity {
		c.rejectedReflectivity.Inc()
		return
	}
	c.backgroundAccum = append(c.backgroundAccum, lp.Point)
	c.admitted.Inc()
	c.advancePhaseLocked(lp.Timestamp)
}

func (c *Characterizer) onObjectPoint(lp geom.LidarPoint) {
	if lp.Reflectivity < c.cfg.MinReflectivity {
		c.rejectedReflectivity.Inc()
		return
	}
	if c.backgroundIdx != nil && c.nearBackgroundLocked(lp.Point) {
		c.rejectedBackground.Inc()
		return
	}
	c.objectAccum = append(c.objectAccum, lp)
	c.admitted.Inc()
	c.evictObjectWindowLocked(lp.Timestamp)
	c.advancePhaseLocked(lp.Timestamp)
}

func (c *Characterizer) onDiscardPoint(lp geom.LidarPoint) {
	if !c.discard.hasStart {
		c.discard.hasStart = true
		c.discard.start = lp.Timestamp
	}
	if lp.Timestamp.Sub(c.discard.start) >= c.discard.durationNs {
		c.signalPhaseDoneLocked()
		c.state = c.discard.prior
		c.phaseDone = c.discard.savedDone
		c.phaseDoneOnce = c.discard.savedOnce
		c.phaseCancel = c.discard.savedCancel
	}
}

// nearBackgroundLocked queries the background index, which is never
// mutated once built, so no additional synchronization beyond the
// characterizer's own mutex is needed for this read.
func (c *Characterizer) nearBackgroundLocked(p geom.Point) bool {
	neighbors, err := c.backgroundIdx.SearchNeighbors(p, c.cfg.BackDistance, octree.Sphere)
	if err != nil {
		return false
	}
	return len(neighbors) > 0
}

// evictObjectWindowLocked drops object points older than cfg.ObjFrame
// relative to now, keeping the object accumulator a sliding window rather
// than an ever-growing buffer.
func (c *Characterizer) evictObjectWindowLocked(now geom.Timestamp) {
	limit := c.cfg.ObjFrame.Nanoseconds()
	i := 0
	for i < len(c.objectAccum) && now.Sub(c.objectAccum[i].Timestamp) > limit {
		i++
	}
	if i > 0 {
		c.objectAccum = c.objectAccum[i:]
	}
}

// advancePhaseLocked tracks elapsed stream time against the active phase's
// target duration. Completion flips state to Stopped in the same critical
// section that detects it, not left for the control goroutine to do once
// woken -- otherwise a fast-replaying source could keep mutating the
// accumulator between the completion signal and the control goroutine
// reacquiring the lock, admitting points past the intended phase boundary.
func (c *Characterizer) advancePhaseLocked(ts geom.Timestamp) {
	if !c.phaseHasStart {
		c.phaseHasStart = true
		c.phaseStart = ts
	}
	if ts.Sub(c.phaseStart) >= c.phaseDuration {
		c.state = Stopped
		c.signalPhaseDoneLocked()
	}
}

func (c *Characterizer) signalPhaseDoneLocked() {
	if c.phaseDoneOnce != nil {
		c.phaseDoneOnce.Do(func() { close(c.phaseDone) })
	}
}
