// Package modelio implements the binary persistence codec for a
// CharacterizedObject: version word, a 16-byte instance id, overall bbox,
// face count, then per face the normal, centroid, bbox, member count and
// member coordinates. The version word and counts are little-endian uint32
// and every coordinate is little-endian IEEE-754 binary64, written with
// encoding/binary the way pointcloud_file.go decodes LAS point data.
package modelio

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/ilMartoo/lidar-anomaly-detector/box"
	"github.com/ilMartoo/lidar-anomaly-detector/characterize"
	"github.com/ilMartoo/lidar-anomaly-detector/geom"
)

// CurrentVersion is the only version word Load accepts. Bumping it is a
// breaking wire-format change.
const CurrentVersion uint32 = 1

// ErrUnsupportedVersion is returned by Load when the file's version word
// does not match CurrentVersion: an unrecognized version is always
// rejected rather than guessed at.
var ErrUnsupportedVersion = errors.New("modelio: unsupported model version")

// Header carries the per-file instance id written alongside the model, for
// traceability across store/load round-trips.
type Header struct {
	Version    uint32
	InstanceID uuid.UUID
}

// Save writes obj to w in the wire format described above, with a freshly
// generated instance id written right after the version word.
func Save(w io.Writer, obj *characterize.CharacterizedObject) (err error) {
	bw := bufio.NewWriter(w)
	defer func() {
		err = multierr.Append(err, bw.Flush())
	}()

	id := uuid.New()
	if err = binary.Write(bw, binary.LittleEndian, CurrentVersion); err != nil {
		return errors.Wrap(err, "modelio: writing version")
	}
	if _, err = bw.Write(id[:]); err != nil {
		return errors.Wrap(err, "modelio: writing instance id")
	}
	if err = writeBox(bw, obj.BBox); err != nil {
		return errors.Wrap(err, "modelio: writing overall bbox")
	}
	if err = binary.Write(bw, binary.LittleEndian, uint32(len(obj.Faces))); err != nil {
		return errors.Wrap(err, "modelio: writing face count")
	}
	for i, f := range obj.Faces {
		if err = writeFace(bw, obj.Points, f); err != nil {
			return errors.Wrapf(err, "modelio: writing face %d", i)
		}
	}
	return nil
}

func writeFace(w io.Writer, points []geom.Point, f characterize.Face) error {
	if err := writePoint(w, f.Normal); err != nil {
		return err
	}
	if err := writePoint(w, f.Centroid); err != nil {
		return err
	}
	if err := writeBox(w, f.BBox); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(f.Members))); err != nil {
		return err
	}
	for _, idx := range f.Members {
		if err := writePoint(w, points[idx]); err != nil {
			return err
		}
	}
	return nil
}

func writePoint(w io.Writer, p geom.Point) error {
	for _, v := range [3]float64{p.X, p.Y, p.Z} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return nil
}

func writeBox(w io.Writer, b box.Box) error {
	if err := writePoint(w, b.Min); err != nil {
		return err
	}
	if err := writePoint(w, b.Max); err != nil {
		return err
	}
	return writePoint(w, b.Delta)
}

// Load reads a CharacterizedObject previously written by Save. Faces'
// Members index into the returned object's Points slice, which is
// reconstructed by concatenating each face's member coordinates in file
// order -- the original indices into whatever raw point cloud produced the
// model are not part of the wire format and are not recoverable.
func Load(r io.Reader) (*characterize.CharacterizedObject, Header, error) {
	br := bufio.NewReader(r)

	var version uint32
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return nil, Header{}, errors.Wrap(err, "modelio: reading version")
	}
	if version != CurrentVersion {
		return nil, Header{}, errors.Wrapf(ErrUnsupportedVersion, "got version %d", version)
	}

	var id uuid.UUID
	if _, err := io.ReadFull(br, id[:]); err != nil {
		return nil, Header{}, errors.Wrap(err, "modelio: reading instance id")
	}
	header := Header{Version: version, InstanceID: id}

	overall, err := readBox(br)
	if err != nil {
		return nil, header, errors.Wrap(err, "modelio: reading overall bbox")
	}

	var faceCount uint32
	if err := binary.Read(br, binary.LittleEndian, &faceCount); err != nil {
		return nil, header, errors.Wrap(err, "modelio: reading face count")
	}

	var allPoints []geom.Point
	faces := make([]characterize.Face, faceCount)
	for i := range faces {
		face, points, err := readFace(br)
		if err != nil {
			return nil, header, errors.Wrapf(err, "modelio: reading face %d", i)
		}
		base := len(allPoints)
		for k := range face.Members {
			face.Members[k] = base + k
		}
		allPoints = append(allPoints, points...)
		faces[i] = face
	}

	return &characterize.CharacterizedObject{
		BBox:   overall,
		Faces:  faces,
		Points: allPoints,
	}, header, nil
}

func readFace(r io.Reader) (characterize.Face, []geom.Point, error) {
	normal, err := readPoint(r)
	if err != nil {
		return characterize.Face{}, nil, err
	}
	centroid, err := readPoint(r)
	if err != nil {
		return characterize.Face{}, nil, err
	}
	bbox, err := readBox(r)
	if err != nil {
		return characterize.Face{}, nil, err
	}
	var memberCount uint32
	if err := binary.Read(r, binary.LittleEndian, &memberCount); err != nil {
		return characterize.Face{}, nil, err
	}
	points := make([]geom.Point, memberCount)
	for i := range points {
		p, err := readPoint(r)
		if err != nil {
			return characterize.Face{}, nil, err
		}
		points[i] = p
	}
	return characterize.Face{
		Normal:   geom.NewVector(normal.X, normal.Y, normal.Z),
		Centroid: centroid,
		BBox:     bbox,
		Members:  make([]int, memberCount),
	}, points, nil
}

func readPoint(r io.Reader) (geom.Point, error) {
	var coords [3]float64
	for i := range coords {
		if err := binary.Read(r, binary.LittleEndian, &coords[i]); err != nil {
			return geom.Point{}, err
		}
	}
	return geom.New(coords[0], coords[1], coords[2]), nil
}

func readBox(r io.Reader) (box.Box, error) {
	min, err := readPoint(r)
	if err != nil {
		return box.Box{}, err
	}
	max, err := readPoint(r)
	if err != nil {
		return box.Box{}, err
	}
	delta, err := readPoint(r)
	if err != nil {
		return box.Box{}, err
	}
	return box.Box{Min: min, Max: max, Delta: delta}, nil
}
