package primitive

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/beztri/engine/pkg/vecmath"
)

// ErrStoreIntegrity is returned when checkpoint data is structurally
// inconsistent. It is fatal: resuming from such a checkpoint would corrupt
// the optimization.
var ErrStoreIntegrity = errors.New("primitive store integrity error")

const (
	checkpointMagic   uint32 = 0x42475431 // "BGT1"
	checkpointVersion uint32 = 1
)

type checkpointHeader struct {
	Magic     uint32
	Version   uint32
	SHDegree  int32
	Slots     int32
	Count     int32
	NextSeq   uint64
	Iteration int64
}

// Save writes the store to w as a zstd-compressed binary checkpoint. Every
// parameter is written with its exact float32 bit pattern, so a round-trip
// is lossless.
func (s *Store) Save(w io.Writer) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}

	hdr := checkpointHeader{
		Magic:     checkpointMagic,
		Version:   checkpointVersion,
		SHDegree:  int32(s.shDegree),
		Slots:     int32(s.Slots()),
		Count:     int32(s.count),
		NextSeq:   s.nextSeq,
		Iteration: int64(s.Iteration),
	}
	if err := binary.Write(zw, binary.LittleEndian, &hdr); err != nil {
		zw.Close()
		return fmt.Errorf("failed to write checkpoint header: %w", err)
	}

	for _, section := range []any{
		s.flatCtrl(), s.flatVec3(s.logScale), s.flatRot(),
		s.opacity, s.sh, boolBytes(s.linear), boolBytes(s.alive), s.created,
	} {
		if err := binary.Write(zw, binary.LittleEndian, section); err != nil {
			zw.Close()
			return fmt.Errorf("failed to write checkpoint section: %w", err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish checkpoint: %w", err)
	}
	return nil
}

// Load reads a checkpoint previously written by Save and returns the
// reconstructed store.
func Load(r io.Reader) (*Store, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer zr.Close()

	var hdr checkpointHeader
	if err := binary.Read(zr, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: truncated header: %v", ErrStoreIntegrity, err)
	}
	if hdr.Magic != checkpointMagic {
		return nil, fmt.Errorf("%w: bad magic 0x%08x", ErrStoreIntegrity, hdr.Magic)
	}
	if hdr.Version != checkpointVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrStoreIntegrity, hdr.Version)
	}
	if hdr.SHDegree < 0 || hdr.SHDegree > 3 {
		return nil, fmt.Errorf("%w: SH degree %d out of range", ErrStoreIntegrity, hdr.SHDegree)
	}
	if hdr.Slots < 0 || hdr.Count < 0 || hdr.Count > hdr.Slots {
		return nil, fmt.Errorf("%w: %d live primitives in %d slots", ErrStoreIntegrity, hdr.Count, hdr.Slots)
	}

	s, err := NewStore(int(hdr.SHDegree))
	if err != nil {
		return nil, err
	}
	slots := int(hdr.Slots)
	ctrl := make([]float32, slots*ControlPoints*3)
	logScale := make([]float32, slots*3)
	rot := make([]float32, slots*4)
	s.opacity = make([]float32, slots)
	s.sh = make([]float32, slots*s.shStride)
	linear := make([]byte, slots)
	alive := make([]byte, slots)
	s.created = make([]uint64, slots)

	for _, section := range []any{
		ctrl, logScale, rot, s.opacity, s.sh, linear, alive, s.created,
	} {
		if err := binary.Read(zr, binary.LittleEndian, section); err != nil {
			return nil, fmt.Errorf("%w: truncated section: %v", ErrStoreIntegrity, err)
		}
	}

	s.ctrl = unflattenVec3(ctrl)
	s.logScale = unflattenVec3(logScale)
	s.rot = unflattenRot(rot)
	s.linear = bytesToBool(linear)
	s.alive = bytesToBool(alive)
	s.nextSeq = hdr.NextSeq
	s.Iteration = int(hdr.Iteration)

	for i, a := range s.alive {
		if a {
			s.count++
		} else {
			s.free = append(s.free, i)
		}
	}
	if s.count != int(hdr.Count) {
		return nil, fmt.Errorf("%w: header claims %d live primitives, found %d", ErrStoreIntegrity, hdr.Count, s.count)
	}
	return s, nil
}

// SaveFile writes a checkpoint to path, replacing any existing file only
// after the write succeeds.
func (s *Store) SaveFile(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %w", err)
	}
	if err := s.Save(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadFile reads a checkpoint from path.
func LoadFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint: %w", err)
	}
	defer f.Close()
	return Load(f)
}

func (s *Store) flatCtrl() []float32 {
	return flattenVec3(s.ctrl)
}

func (s *Store) flatVec3(v []vecmath.Vec3) []float32 {
	return flattenVec3(v)
}

func (s *Store) flatRot() []float32 {
	out := make([]float32, len(s.rot)*4)
	for i, q := range s.rot {
		out[i*4+0] = q.W
		out[i*4+1] = q.X
		out[i*4+2] = q.Y
		out[i*4+3] = q.Z
	}
	return out
}

func flattenVec3(v []vecmath.Vec3) []float32 {
	out := make([]float32, len(v)*3)
	for i, p := range v {
		out[i*3+0] = p[0]
		out[i*3+1] = p[1]
		out[i*3+2] = p[2]
	}
	return out
}

func unflattenVec3(f []float32) []vecmath.Vec3 {
	out := make([]vecmath.Vec3, len(f)/3)
	for i := range out {
		out[i] = vecmath.Vec3{f[i*3], f[i*3+1], f[i*3+2]}
	}
	return out
}

func unflattenRot(f []float32) []vecmath.Quat {
	out := make([]vecmath.Quat, len(f)/4)
	for i := range out {
		out[i] = vecmath.Quat{W: f[i*4], X: f[i*4+1], Y: f[i*4+2], Z: f[i*4+3]}
	}
	return out
}

func boolBytes(b []bool) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		if v {
			out[i] = 1
		}
	}
	return out
}

func bytesToBool(b []byte) []bool {
	out := make([]bool, len(b))
	for i, v := range b {
		out[i] = v != 0
	}
	return out
}
