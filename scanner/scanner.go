// Package scanner defines the abstract point source the characterizer
// drives: device-specific drivers (binary frame parsers, CSV readers) live
// outside this module entirely, so the characterizer only ever depends on
// this interface.
package scanner

import (
	"github.com/pkg/errors"

	"github.com/ilMartoo/lidar-anomaly-detector/geom"
)

// ErrInit wraps a failure from Source.Init.
var ErrInit = errors.New("scanner: init failed")

// ErrRead wraps a failure surfaced while Start was running.
var ErrRead = errors.New("scanner: read failed")

// ScanCode is the terminal outcome of a Start call.
type ScanCode int

const (
	// Ok means Pause (or, in SliceSource, Stop) was called and Start
	// returned cooperatively.
	Ok ScanCode = iota
	// Eof means the source ran out of points on its own.
	Eof
	// Error means the source failed; the caller should inspect the error
	// Start returned alongside this code.
	Error
)

func (c ScanCode) String() string {
	switch c {
	case Ok:
		return "Ok"
	case Eof:
		return "Eof"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// Callback receives one point at a time from Start. It must not block for
// long or retain p beyond the call, since Source implementations are free
// to reuse the backing point across calls.
type Callback func(geom.LidarPoint)

// Source is the point-source interface a characterizer session drives from
// its own goroutine. SetCallback must be called before Start.
type Source interface {
	// Init prepares the source (opening a device, a file, a socket). It is
	// called at most once per session.
	Init() error

	// Start blocks, emitting points to the registered callback, until the
	// source is exhausted (Eof), Pause is called (Ok), or a read failure
	// occurs (Error, with a non-nil error).
	Start() (ScanCode, error)

	// Pause cooperatively asks Start to return; implementations check a
	// flag after each emitted point.
	Pause()

	// Stop closes the source. Start must not be called again afterward.
	Stop()

	// SetCallback registers the point sink. Must be called before Start.
	SetCallback(Callback)
}
