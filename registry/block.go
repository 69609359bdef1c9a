package registry

import (
	"sync"

	"github.com/filegrind/capforge/urn"
)

// namedRegistry is one entry of a Block's ordered registry list.
type namedRegistry struct {
	name   string
	matrix *Matrix
}

// Block holds an ordered list of (name, Matrix) registries (spec.md C8).
// Order is load-bearing: on a specificity tie between candidates from two
// different registries, the earlier-added registry wins.
type Block struct {
	mu         sync.RWMutex
	registries []namedRegistry
}

// NewBlock builds an empty block.
func NewBlock() *Block {
	return &Block{}
}

// AddRegistry appends a named registry to the end of the block's order.
func (b *Block) AddRegistry(name string, matrix *Matrix) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registries = append(b.registries, namedRegistry{name: name, matrix: matrix})
}

// RemoveRegistry removes a registry by name, returning it if found.
func (b *Block) RemoveRegistry(name string) *Matrix {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, entry := range b.registries {
		if entry.name == name {
			b.registries = append(b.registries[:i], b.registries[i+1:]...)
			return entry.matrix
		}
	}
	return nil
}

// GetRegistryNames returns registry names in block order.
func (b *Block) GetRegistryNames() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, len(b.registries))
	for i, entry := range b.registries {
		names[i] = entry.name
	}
	return names
}

// GetRegistry returns a child registry by name.
func (b *Block) GetRegistry(name string) *Matrix {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, entry := range b.registries {
		if entry.name == name {
			return entry.matrix
		}
	}
	return nil
}

// FindBestCapSet polls every registry in block order, collects all
// candidates, and returns the single highest-specificity match. Ties are
// broken by registry order in the block (earlier wins), then by the
// per-matrix tie-break already applied inside Matrix.FindBestCapSet
// (spec.md §4.6).
func (b *Block) FindBestCapSet(request *urn.CapURN) (*Match, error) {
	b.mu.RLock()
	snapshot := make([]namedRegistry, len(b.registries))
	copy(snapshot, b.registries)
	b.mu.RUnlock()

	var best *Match
	for _, entry := range snapshot {
		candidate, err := entry.matrix.FindBestCapSet(request)
		if err != nil {
			continue
		}
		if best == nil || candidate.Specificity > best.Specificity {
			best = candidate
		}
	}
	if best == nil {
		return nil, NewNoSetsFoundError(request.String())
	}
	return best, nil
}

// AcceptsRequest reports whether any registry in the block has a handler
// for the request.
func (b *Block) AcceptsRequest(request *urn.CapURN) bool {
	_, err := b.FindBestCapSet(request)
	return err == nil
}

// Can resolves request across every registry in the block and returns a
// Caller bound to the best match, mirroring Matrix.Can at the Block
// level (spec.md §4.5).
func (b *Block) Can(request *urn.CapURN) (*Caller, error) {
	match, err := b.FindBestCapSet(request)
	if err != nil {
		return nil, NewUnknownCapError(request.String())
	}
	return &Caller{match: match}, nil
}

// Graph builds the derived conversion Graph (C9) from a snapshot of the
// block taken at call time; later mutations of the block do not affect
// the returned graph (spec.md §5).
func (b *Block) Graph() *Graph {
	b.mu.RLock()
	snapshot := make([]namedRegistry, len(b.registries))
	copy(snapshot, b.registries)
	b.mu.RUnlock()

	g := newGraph()
	for _, entry := range snapshot {
		for _, item := range entry.matrix.AllCaps() {
			g.addCap(item.Cap, entry.name)
		}
	}
	return g
}
