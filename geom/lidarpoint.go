package geom

// LidarPoint is a Point extended with the fields a scanning range sensor
// attaches to every sample: a monotonic timestamp and a reflectivity
// reading. Scanners emit LidarPoints; everything downstream of ingestion
// (octree, clustering, characterization) operates on plain Points.
type LidarPoint struct {
	Point
	Timestamp    Timestamp
	Reflectivity float64
}

// NewLidarPoint constructs a LidarPoint at the given coordinates.
func NewLidarPoint(x, y, z float64, ts Timestamp, reflectivity float64) LidarPoint {
	return LidarPoint{
		Point:        New(x, y, z),
		Timestamp:    ts,
		Reflectivity: reflectivity,
	}
}
