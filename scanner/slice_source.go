package scanner

import (
	"go.uber.org/atomic"

	"github.com/ilMartoo/lidar-anomaly-detector/geom"
)

// SliceSource is a Source backed by an in-memory point slice, used to drive
// a characterizer session in tests without a real device -- the role
// testutils/inject's function-field doubles play for lidar.Device,
// adapted here to the streaming push-based Source shape instead of a
// request/response Scan call.
type SliceSource struct {
	points []geom.LidarPoint
	cursor int

	paused  atomic.Bool
	stopped atomic.Bool
	cb      Callback

	// InitErr, if set, is returned by Init instead of nil.
	InitErr error
}

// NewSliceSource returns a SliceSource that will emit points in order.
func NewSliceSource(points []geom.LidarPoint) *SliceSource {
	return &SliceSource{points: points}
}

// Init implements Source.
func (s *SliceSource) Init() error {
	return s.InitErr
}

// SetCallback implements Source.
func (s *SliceSource) SetCallback(cb Callback) {
	s.cb = cb
}

// Start implements Source. It replays points from the current cursor,
// checking the stop flag before and the pause flag after each emission.
func (s *SliceSource) Start() (ScanCode, error) {
	s.paused.Store(false)
	for ; s.cursor < len(s.points); s.cursor++ {
		if s.stopped.Load() {
			return Ok, nil
		}
		if s.cb != nil {
			s.cb(s.points[s.cursor])
		}
		if s.paused.Load() {
			s.cursor++
			return Ok, nil
		}
	}
	return Eof, nil
}

// Pause implements Source.
func (s *SliceSource) Pause() {
	s.paused.Store(true)
}

// Stop implements Source.
func (s *SliceSource) Stop() {
	s.stopped.Store(true)
}

// Remaining reports how many points have not yet been emitted, useful in
// tests to assert how far a paused Start got.
func (s *SliceSource) Remaining() int {
	if s.cursor >= len(s.points) {
		return 0
	}
	return len(s.points) - s.cursor
}
