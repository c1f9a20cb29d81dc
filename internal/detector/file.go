package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/ayusman/glowlens/internal/frame"
	"github.com/ayusman/glowlens/internal/landmark"
)

// FileBackend serves a precomputed landmark set read from a JSON file. The
// file holds a landmark.Set; when its topology is omitted it is inferred
// from the point count. It backs offline analysis of a still image whose
// landmarks were detected elsewhere.
type FileBackend struct {
	path string

	mu  sync.Mutex
	set landmark.Set
}

// NewFileBackend creates a backend over path. The file is read by Load.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Load reads and validates the landmark file.
func (b *FileBackend) Load(ctx context.Context) (landmark.Topology, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		return landmark.Topology{}, &ModelLoadError{Kind: NetworkFailure, Err: err}
	}

	var set landmark.Set
	if err := json.Unmarshal(data, &set); err != nil {
		return landmark.Topology{}, &ModelLoadError{Kind: UnsupportedDevice, Err: fmt.Errorf("parse %s: %w", b.path, err)}
	}

	if set.Topology.Name == "" {
		switch len(set.Points) {
		case landmark.FaceMesh.Points:
			set.Topology = landmark.FaceMesh
		case landmark.Hand.Points:
			set.Topology = landmark.Hand
		default:
			return landmark.Topology{}, &ModelLoadError{
				Kind: TopologyMismatch,
				Err:  fmt.Errorf("%w: %s has %d points", ErrTopologyMismatch, b.path, len(set.Points)),
			}
		}
	}
	if set.Score == 0 {
		set.Score = 1
	}

	b.mu.Lock()
	b.set = set
	b.mu.Unlock()
	return set.Topology, nil
}

// Detect returns the loaded set for every frame.
func (b *FileBackend) Detect(f *frame.Sample) (landmark.Set, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set := b.set
	set.Points = append([]landmark.Point(nil), b.set.Points...)
	if set.Aspect <= 0 {
		set.Aspect = f.Aspect()
	}
	return set, nil
}

// Close is a no-op.
func (b *FileBackend) Close() error {
	return nil
}
