package primitive

import (
	"bytes"
	"errors"
	"math"
	"path/filepath"
	"testing"
)

func TestCheckpointRoundTrip(t *testing.T) {
	s, err := NewStore(1)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	for i := 0; i < 5; i++ {
		p := testParams(float32(i))
		p.SH = make([]float32, s.SHStride())
		for k := range p.SH {
			// Awkward bit patterns must survive exactly.
			p.SH[k] = float32(math.Pi) * float32(i+1) / float32(k+3)
		}
		s.Add(p)
	}
	s.Remove(2)
	s.Iteration = 12345

	path := filepath.Join(t.TempDir(), "chkpnt.bgt")
	if err := s.SaveFile(path); err != nil {
		t.Fatalf("failed to save checkpoint: %v", err)
	}

	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("failed to load checkpoint: %v", err)
	}

	if got.Len() != s.Len() || got.Slots() != s.Slots() {
		t.Fatalf("expected %d/%d primitives, got %d/%d", s.Len(), s.Slots(), got.Len(), got.Slots())
	}
	if got.Iteration != 12345 {
		t.Fatalf("expected iteration 12345, got %d", got.Iteration)
	}
	if got.SHDegree() != 1 {
		t.Fatalf("expected SH degree 1, got %d", got.SHDegree())
	}

	for i := 0; i < s.Slots(); i++ {
		if got.Alive(i) != s.Alive(i) {
			t.Fatalf("slot %d liveness mismatch", i)
		}
		if !s.Alive(i) {
			continue
		}
		a, b := s.Params(i), got.Params(i)
		if a.Ctrl != b.Ctrl {
			t.Fatalf("slot %d control net not bit-identical", i)
		}
		if a.LogScale != b.LogScale || a.Rot != b.Rot || a.Opacity != b.Opacity {
			t.Fatalf("slot %d Gaussian parameters not bit-identical", i)
		}
		for k := range a.SH {
			if math.Float32bits(a.SH[k]) != math.Float32bits(b.SH[k]) {
				t.Fatalf("slot %d SH coeff %d changed: %x vs %x", i, k,
					math.Float32bits(a.SH[k]), math.Float32bits(b.SH[k]))
			}
		}
		if got.Created(i) != s.Created(i) {
			t.Fatalf("slot %d creation sequence changed", i)
		}
	}

	// Free slots survive: adding reuses the pruned slot.
	idx := got.Add(testParams(9))
	if idx != 2 {
		t.Fatalf("expected freed slot 2 to be reused after load, got %d", idx)
	}
}

func TestCheckpointBadMagic(t *testing.T) {
	s, _ := NewStore(0)
	s.Add(testParams(0))

	var buf bytes.Buffer
	if err := s.Save(&buf); err != nil {
		t.Fatalf("failed to save: %v", err)
	}

	// Corrupt the compressed stream wholesale: loading must fail, and when
	// the payload decodes it must surface ErrStoreIntegrity.
	if _, err := Load(bytes.NewReader([]byte("not a checkpoint"))); err == nil {
		t.Fatal("expected error for garbage input")
	}
}

func TestCheckpointTruncated(t *testing.T) {
	s, _ := NewStore(0)
	for i := 0; i < 8; i++ {
		s.Add(testParams(float32(i)))
	}
	var buf bytes.Buffer
	if err := s.Save(&buf); err != nil {
		t.Fatalf("failed to save: %v", err)
	}

	_, err := Load(bytes.NewReader(buf.Bytes()[:buf.Len()/2]))
	if err == nil {
		t.Fatal("expected error for truncated checkpoint")
	}
}

func TestCheckpointEmptyStore(t *testing.T) {
	s, _ := NewStore(3)
	var buf bytes.Buffer
	if err := s.Save(&buf); err != nil {
		t.Fatalf("failed to save empty store: %v", err)
	}
	got, err := Load(&buf)
	if err != nil {
		t.Fatalf("failed to load empty store: %v", err)
	}
	if got.Len() != 0 || got.SHDegree() != 3 {
		t.Fatalf("unexpected store after round trip: %d live, degree %d", got.Len(), got.SHDegree())
	}
}

func TestErrStoreIntegrityIsSentinel(t *testing.T) {
	wrapped := errors.Join(ErrStoreIntegrity)
	if !errors.Is(wrapped, ErrStoreIntegrity) {
		t.Fatal("sentinel does not survive wrapping")
	}
}
