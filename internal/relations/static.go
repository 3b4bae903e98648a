package relations

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// StaticGraph serves a snapshot held in memory, e.g. loaded from a JSON file
// in development. Replace swaps it atomically for later resolutions.
type StaticGraph struct {
	mu   sync.RWMutex
	snap *Snapshot
}

func NewStaticGraph(snap *Snapshot) *StaticGraph {
	if snap == nil {
		snap = &Snapshot{}
	}
	return &StaticGraph{snap: snap}
}

// LoadStaticGraph reads a snapshot from a JSON file
func LoadStaticGraph(path string) (*StaticGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read relations file: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse relations file: %w", err)
	}
	return NewStaticGraph(&snap), nil
}

func (g *StaticGraph) Snapshot(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.snap, nil
}

func (g *StaticGraph) Replace(snap *Snapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.snap = snap
}
