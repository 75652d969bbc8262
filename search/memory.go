package search

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/SierraSoftworks/connor"
	"github.com/google/btree"
)

type entry struct {
	id   string
	body Body
}

type memoryIndex struct {
	mapping Mapping
	docs    *btree.BTreeG[entry]
}

// MemoryEngine is an in-process Engine.
type MemoryEngine struct {
	mu      sync.RWMutex
	indices map[string]*memoryIndex
	aliases map[string]string
}

var _ Engine = (*MemoryEngine)(nil)

// NewMemoryEngine creates an empty MemoryEngine.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{
		indices: make(map[string]*memoryIndex),
		aliases: make(map[string]string),
	}
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, " /\\*?\"<>|,#") {
		return fmt.Errorf("%w: %q", ErrInvalidIndexName, name)
	}
	return nil
}

func (e *MemoryEngine) CreateIndex(ctx context.Context, name string, mapping Mapping) error {
	if err := validName(name); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.indices[name]; ok {
		return fmt.Errorf("%w: %s", ErrIndexExists, name)
	}
	if _, ok := e.aliases[name]; ok {
		return fmt.Errorf("%w: %s is an alias", ErrIndexExists, name)
	}
	e.indices[name] = &memoryIndex{
		mapping: mapping,
		docs: btree.NewG(32, func(a, b entry) bool {
			return a.id < b.id
		}),
	}
	return nil
}

// DeleteIndex drops name and every alias pointing at it.
func (e *MemoryEngine) DeleteIndex(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.indices[name]; !ok {
		return fmt.Errorf("%w: %s", ErrIndexNotFound, name)
	}
	delete(e.indices, name)
	for alias, target := range e.aliases {
		if target == name {
			delete(e.aliases, alias)
		}
	}
	return nil
}

func (e *MemoryEngine) IndexExists(ctx context.Context, name string) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.indices[name]
	return ok, nil
}

func (e *MemoryEngine) Indices(ctx context.Context, prefix string) ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var names []string
	for name := range maps.Keys(e.indices) {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

func (e *MemoryEngine) PutAlias(ctx context.Context, alias, index string) error {
	if err := validName(alias); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.indices[index]; !ok {
		return fmt.Errorf("%w: %s", ErrIndexNotFound, index)
	}
	if _, ok := e.indices[alias]; ok {
		return fmt.Errorf("%w: %s is an index", ErrInvalidIndexName, alias)
	}
	e.aliases[alias] = index
	return nil
}

func (e *MemoryEngine) ResolveAlias(ctx context.Context, alias string) (string, bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	index, ok := e.aliases[alias]
	return index, ok, nil
}

// resolve returns the index target refers to. The caller must hold e.mu.
func (e *MemoryEngine) resolve(target string) (*memoryIndex, error) {
	if index, ok := e.aliases[target]; ok {
		target = index
	}
	idx, ok := e.indices[target]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, target)
	}
	return idx, nil
}

func (e *MemoryEngine) Index(ctx context.Context, target, id string, body Body) error {
	if id == "" {
		return fmt.Errorf("%w: empty document id", ErrInvalidIndexName)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	idx, err := e.resolve(target)
	if err != nil {
		return err
	}
	idx.docs.ReplaceOrInsert(entry{id: id, body: idx.mapping.Apply(body)})
	return nil
}

func (e *MemoryEngine) Delete(ctx context.Context, target, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx, err := e.resolve(target)
	if err != nil {
		return err
	}
	idx.docs.Delete(entry{id: id})
	return nil
}

func (e *MemoryEngine) Get(ctx context.Context, target, id string) (Body, bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	idx, err := e.resolve(target)
	if err != nil {
		return nil, false, err
	}
	found, ok := idx.docs.Get(entry{id: id})
	if !ok {
		return nil, false, nil
	}
	return maps.Clone(found.body), true, nil
}

func (e *MemoryEngine) Count(ctx context.Context, target string) (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	idx, err := e.resolve(target)
	if err != nil {
		return 0, err
	}
	return idx.docs.Len(), nil
}

func (e *MemoryEngine) Search(ctx context.Context, target string, filter map[string]any, limit int) ([]Hit, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	idx, err := e.resolve(target)
	if err != nil {
		return nil, err
	}

	var (
		hits     []Hit
		matchErr error
	)
	idx.docs.Ascend(func(item entry) bool {
		if err := ctx.Err(); err != nil {
			matchErr = err
			return false
		}
		if len(filter) > 0 {
			match, err := connor.Match(filter, map[string]any(item.body))
			if err != nil {
				matchErr = fmt.Errorf("%w: %w", ErrInvalidFilter, err)
				return false
			}
			if !match {
				return true
			}
		}
		hits = append(hits, Hit{ID: item.id, Body: maps.Clone(item.body)})
		return limit <= 0 || len(hits) < limit
	})
	if matchErr != nil {
		return nil, matchErr
	}
	return hits, nil
}
