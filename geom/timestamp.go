package geom

// Timestamp is a (seconds, nanoseconds) pair, reducible to a 64-bit
// nanosecond count. Phase durations throughout this module are measured in
// stream timestamps rather than wall-clock time, so this type -- and not
// time.Time -- is what the characterizer keys its accounting off of.
type Timestamp struct {
	Seconds     int64
	Nanoseconds int64
}

// NewTimestamp returns a Timestamp for the given seconds/nanoseconds pair.
func NewTimestamp(seconds, nanoseconds int64) Timestamp {
	return Timestamp{Seconds: seconds, Nanoseconds: nanoseconds}
}

// FromNanos builds a Timestamp from a single nanosecond count.
func FromNanos(ns int64) Timestamp {
	const nsPerSecond = int64(1e9)
	return Timestamp{Seconds: ns / nsPerSecond, Nanoseconds: ns % nsPerSecond}
}

// UnixNano reduces the Timestamp to a single 64-bit nanosecond count.
func (t Timestamp) UnixNano() int64 {
	const nsPerSecond = int64(1e9)
	return t.Seconds*nsPerSecond + t.Nanoseconds
}

// Sub returns the signed duration, in nanoseconds, from o to t (t - o).
func (t Timestamp) Sub(o Timestamp) int64 {
	return t.UnixNano() - o.UnixNano()
}

// Before reports whether t occurs strictly before o.
func (t Timestamp) Before(o Timestamp) bool {
	return t.UnixNano() < o.UnixNano()
}

// Add returns a new Timestamp offset by the given nanoseconds.
func (t Timestamp) Add(ns int64) Timestamp {
	return FromNanos(t.UnixNano() + ns)
}
