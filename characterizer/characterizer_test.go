package characterizer

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"

	"github.com/ilMartoo/lidar-anomaly-detector/config"
	"github.com/ilMartoo/lidar-anomaly-detector/geom"
	"github.com/ilMartoo/lidar-anomaly-detector/internal/lidartest"
	"github.com/ilMartoo/lidar-anomaly-detector/scanner"
)

func longRunningConfig() config.Parameters {
	cfg := config.Default()
	cfg.HardWallTimeout = time.Hour
	return cfg
}

// TestDefineBackgroundStreamTimePhaseLength checks the exact admitted-point
// count a stream-timestamp-driven phase closes at. The phase clock is
// anchored at the first admitted point (elapsed zero
// there), so completion is detected at the first point whose elapsed time
// reaches or exceeds the target span: ceil(T/dt) + 1 points for a stream
// advancing by dt per point, one more than the textbook ceil(T/dt) because
// the anchor point itself contributes no elapsed time.
func TestDefineBackgroundStreamTimePhaseLength(t *testing.T) {
	const dtNanos = int64(10 * time.Millisecond)
	backFrame := 100 * time.Millisecond

	cfg := longRunningConfig()
	cfg.BackFrame = backFrame

	n := 50
	pts := make([]geom.Point, n)
	for i := range pts {
		pts[i] = geom.New(float64(i), 0, 0)
	}
	stream := lidartest.LidarStream(pts, geom.FromNanos(0), dtNanos, 1.0)

	src := scanner.NewSliceSource(stream)
	c, err := New(src, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.Init(), test.ShouldBeNil)

	err = c.DefineBackground(context.Background())
	test.That(t, err, test.ShouldBeNil)

	expected := int64(math.Ceil(float64(backFrame.Nanoseconds())/float64(dtNanos))) + 1
	test.That(t, c.Stats().Admitted, test.ShouldEqual, expected)
}

// TestBackgroundSubtractionExcludesNearbyPoints checks background
// subtraction end to end: a wall is learned as background, then a cube in
// front of it is streamed alongside the same wall points. Only the cube's
// points should survive into the object.
func TestBackgroundSubtractionExcludesNearbyPoints(t *testing.T) {
	cfg := longRunningConfig()
	cfg.ObjFrame = time.Second
	cfg.BackDistance = 20
	cfg.MinClusterPoints = 5
	cfg.ClusterPointProximity = 15

	// 200 wall points at 1ms spacing span 199ms; BackFrame is set to that
	// exact span so the phase closes on the last point instead of on the
	// real hard-wall timeout, admitting the whole wall into the background.
	wallPts := make([]geom.Point, 200)
	for i := range wallPts {
		wallPts[i] = geom.New(float64(i%20)*10, float64(i/20)*10, 1000)
	}
	cfg.BackFrame = 199 * time.Millisecond
	backStream := lidartest.LidarStream(wallPts, geom.FromNanos(0), int64(time.Millisecond), 1.0)

	c, err := New(scanner.NewSliceSource(backStream), cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.Init(), test.ShouldBeNil)
	test.That(t, c.DefineBackground(context.Background()), test.ShouldBeNil)

	// The mixed stream re-times every point (wall included) at 5ms spacing,
	// so the admitted span of surviving cube points alone -- the wall
	// points are all rejected by the now-complete background index --
	// comfortably exceeds the 1-second ObjFrame instead of stalling on the
	// real HardWallTimeout.
	rng := rand.New(rand.NewSource(1))
	cubePts := lidartest.CubeSurface(rng, 300, geom.New(500, 0, 300), 80)
	mixed := append(append([]geom.Point(nil), wallPts...), cubePts...)
	objStream := lidartest.LidarStream(mixed, geom.FromNanos(0), int64(5*time.Millisecond), 1.0)

	c.src = scanner.NewSliceSource(objStream)
	test.That(t, c.Init(), test.ShouldBeNil)
	obj, err := c.DefineObject(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(obj.Points), test.ShouldBeGreaterThan, 0)

	for _, p := range obj.Points {
		test.That(t, p.Z, test.ShouldBeLessThan, 900.0)
	}
}

func TestDefineObjectNoObjectOnNoise(t *testing.T) {
	cfg := longRunningConfig()
	cfg.ObjFrame = time.Second

	// 100 points at 15ms spacing span 1485ms, past ObjFrame, so the phase
	// closes on genuine stream progress and characterize.Build actually
	// runs on the noise instead of the call returning via HardWallTimeout.
	rng := rand.New(rand.NewSource(3))
	pts := make([]geom.Point, 100)
	for i := range pts {
		pts[i] = geom.New(rng.Float64()*10000-5000, rng.Float64()*10000-5000, rng.Float64()*10000-5000)
	}
	stream := lidartest.LidarStream(pts, geom.FromNanos(0), int64(15*time.Millisecond), 1.0)

	src := scanner.NewSliceSource(stream)
	c, err := New(src, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.Init(), test.ShouldBeNil)

	_, err = c.DefineObject(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
}

// TestDefineObjectEmptyStreamYieldsError checks a stream that ends
// immediately: it never accumulates enough elapsed time on its own, so
// the hard-wall timeout is what eventually breaks DefineObject out.
func TestDefineObjectEmptyStreamYieldsError(t *testing.T) {
	cfg := longRunningConfig()
	cfg.ObjFrame = 10 * time.Millisecond
	cfg.HardWallTimeout = 50 * time.Millisecond

	src := scanner.NewSliceSource(nil)
	mockClock := clock.NewMock()
	c, err := New(src, cfg, WithClock(mockClock))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.Init(), test.ShouldBeNil)

	done := make(chan struct{})
	var callErr error
	go func() {
		_, callErr = c.DefineObject(context.Background())
		close(done)
	}()

	mockClock.Add(cfg.HardWallTimeout)
	<-done
	test.That(t, callErr, test.ShouldNotBeNil)
}

func TestStopCancelsBlockedDefineObject(t *testing.T) {
	cfg := longRunningConfig()
	cfg.ObjFrame = time.Hour

	src := scanner.NewSliceSource(nil)
	c, err := New(src, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.Init(), test.ShouldBeNil)

	done := make(chan struct{})
	var callErr error
	go func() {
		_, callErr = c.DefineObject(context.Background())
		close(done)
	}()

	for c.State() != DefiningObject {
		time.Sleep(time.Millisecond)
	}
	c.Stop()
	<-done
	test.That(t, callErr, test.ShouldEqual, ErrCancelled)
	test.That(t, c.State(), test.ShouldEqual, Stopped)
}

func TestDefineObjectRejectsInvalidState(t *testing.T) {
	cfg := longRunningConfig()
	cfg.BackFrame = time.Hour

	src := scanner.NewSliceSource(nil)
	c, err := New(src, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.Init(), test.ShouldBeNil)

	go func() { _ = c.DefineBackground(context.Background()) }()
	for c.State() != DefiningBackground {
		time.Sleep(time.Millisecond)
	}

	_, err = c.DefineObject(context.Background())
	test.That(t, err, test.ShouldNotBeNil)

	c.Stop()
}

// TestWaitReturnsToPriorState drives a discard window from Stopped and
// checks the state machine lands back where it started once the window's
// timestamp span elapses.
func TestWaitReturnsToPriorState(t *testing.T) {
	const dtNanos = int64(time.Millisecond)
	cfg := longRunningConfig()

	pts := make([]geom.Point, 200)
	for i := range pts {
		pts[i] = geom.New(float64(i), 0, 0)
	}
	stream := lidartest.LidarStream(pts, geom.FromNanos(0), dtNanos, 1.0)
	src := scanner.NewSliceSource(stream)

	c, err := New(src, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.Init(), test.ShouldBeNil)

	err = c.Wait(context.Background(), 50*time.Millisecond)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.State(), test.ShouldEqual, Stopped)
}

// TestWaitInterruptsActivePhaseAndResumes drives Wait from inside an active
// DefineObject call, the case TestWaitReturnsToPriorState doesn't cover:
// the interrupted call must still unblock once its own phase later
// completes for real, rather than hanging on a sync.Once the discard
// window already fired.
func TestWaitInterruptsActivePhaseAndResumes(t *testing.T) {
	cfg := longRunningConfig()
	cfg.ObjFrame = 5 * time.Millisecond

	c, err := New(scanner.NewSliceSource(nil), cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.Init(), test.ShouldBeNil)

	objDone := make(chan struct{})
	var objErr error
	go func() {
		_, objErr = c.DefineObject(context.Background())
		close(objDone)
	}()
	for c.State() != DefiningObject {
		time.Sleep(time.Millisecond)
	}

	t0 := geom.FromNanos(0)
	c.newPoint(geom.NewLidarPoint(0, 0, 0, t0, 1.0))
	test.That(t, c.State(), test.ShouldEqual, DefiningObject)

	waitDone := make(chan struct{})
	var waitErr error
	go func() {
		waitErr = c.Wait(context.Background(), 10*time.Millisecond)
		close(waitDone)
	}()
	for c.State() != Discarding {
		time.Sleep(time.Millisecond)
	}

	c.newPoint(geom.NewLidarPoint(1, 0, 0, t0.Add(int64(time.Millisecond)), 1.0))
	c.newPoint(geom.NewLidarPoint(2, 0, 0, t0.Add(int64(12*time.Millisecond)), 1.0))

	<-waitDone
	test.That(t, waitErr, test.ShouldBeNil)
	test.That(t, c.State(), test.ShouldEqual, DefiningObject)

	c.newPoint(geom.NewLidarPoint(3, 0, 0, t0.Add(int64(20*time.Millisecond)), 1.0))

	<-objDone
	// characterize.Build legitimately fails on this handful of points --
	// the point of this test is that DefineObject unblocks via genuine
	// phase completion (signalled on its own, restored phaseDone) rather
	// than falling through to the hard-wall-timeout branch of waitFor.
	test.That(t, objErr, test.ShouldNotEqual, scanner.ErrRead)
}

// TestStopDuringWaitCancelsInterruptedPhase checks that Stop() called
// while a discard window is active reaches the phase Wait interrupted,
// not just the discard's own wait.
func TestStopDuringWaitCancelsInterruptedPhase(t *testing.T) {
	cfg := longRunningConfig()
	cfg.ObjFrame = time.Hour

	c, err := New(scanner.NewSliceSource(nil), cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.Init(), test.ShouldBeNil)

	objDone := make(chan struct{})
	var objErr error
	go func() {
		_, objErr = c.DefineObject(context.Background())
		close(objDone)
	}()
	for c.State() != DefiningObject {
		time.Sleep(time.Millisecond)
	}

	t0 := geom.FromNanos(0)
	c.newPoint(geom.NewLidarPoint(0, 0, 0, t0, 1.0))

	waitDone := make(chan struct{})
	var waitErr error
	go func() {
		waitErr = c.Wait(context.Background(), time.Hour)
		close(waitDone)
	}()
	for c.State() != Discarding {
		time.Sleep(time.Millisecond)
	}

	c.Stop()

	<-objDone
	<-waitDone
	test.That(t, objErr, test.ShouldEqual, ErrCancelled)
	test.That(t, waitErr, test.ShouldEqual, ErrCancelled)
	test.That(t, c.State(), test.ShouldEqual, Stopped)
}
