// Package memory provides in-process implementations of the store adapters.
//
// Both stores are safe for concurrent use and support injecting failures per
// key, which is how tests simulate an unavailable backend. The fixture loader
// in this package backs offline reconciliation runs.
package memory

import (
	"context"
	"reflect"
	"sort"
	"strings"
	"sync"

	"dispenser-sync/core/store"
)

// DocumentStore is an in-memory store.DocumentStore.
type DocumentStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]store.Fields
	readErrs    map[string]error
	writeErrs   map[string]error
	writes      int
}

// NewDocumentStore creates an empty document store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		collections: make(map[string]map[string]store.Fields),
		readErrs:    make(map[string]error),
		writeErrs:   make(map[string]error),
	}
}

// Put seeds a document without going through failure injection.
func (s *DocumentStore) Put(collection, id string, fields store.Fields) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(collection, id, fields.Clone())
}

// FailReads makes every read of collection fail with err.
func (s *DocumentStore) FailReads(collection string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErrs[collection] = err
}

// FailWrites makes writes to collection/id fail with err.
func (s *DocumentStore) FailWrites(collection, id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErrs[collection+"/"+id] = err
}

// Writes returns the number of successful writes.
func (s *DocumentStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// Snapshot returns a copy of a collection keyed by id.
func (s *DocumentStore) Snapshot(collection string) map[string]store.Fields {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]store.Fields, len(s.collections[collection]))
	for id, f := range s.collections[collection] {
		out[id] = f.Clone()
	}
	return out
}

func (s *DocumentStore) put(collection, id string, fields store.Fields) {
	c, ok := s.collections[collection]
	if !ok {
		c = make(map[string]store.Fields)
		s.collections[collection] = c
	}
	c[id] = fields
}

// GetDoc implements store.DocumentStore.
func (s *DocumentStore) GetDoc(ctx context.Context, collection, id string) (store.Fields, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.readErrs[collection]; err != nil {
		return nil, err
	}
	f, ok := s.collections[collection][id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return f.Clone(), nil
}

// ListDocs implements store.DocumentStore.
func (s *DocumentStore) ListDocs(ctx context.Context, collection string) ([]store.Doc, error) {
	return s.filter(ctx, collection, func(store.Fields) bool { return true })
}

// QueryByField implements store.DocumentStore.
func (s *DocumentStore) QueryByField(ctx context.Context, collection, field string, value any) ([]store.Doc, error) {
	return s.filter(ctx, collection, func(f store.Fields) bool {
		v, ok := f[field]
		return ok && reflect.DeepEqual(v, value)
	})
}

func (s *DocumentStore) filter(ctx context.Context, collection string, keep func(store.Fields) bool) ([]store.Doc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.readErrs[collection]; err != nil {
		return nil, err
	}
	docs := make([]store.Doc, 0)
	for id, f := range s.collections[collection] {
		if keep(f) {
			docs = append(docs, store.Doc{ID: id, Fields: f.Clone()})
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// SetDoc implements store.DocumentStore.
func (s *DocumentStore) SetDoc(ctx context.Context, collection, id string, fields store.Fields, merge bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErrs[collection+"/"+id]; err != nil {
		return err
	}
	data := fields.Clone()
	if existing, ok := s.collections[collection][id]; ok && merge {
		data = existing.Clone()
		for k, v := range fields {
			data[k] = v
		}
	}
	s.put(collection, id, data)
	s.writes++
	return nil
}

// UpdateDoc implements store.DocumentStore.
func (s *DocumentStore) UpdateDoc(ctx context.Context, collection, id string, fields store.Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErrs[collection+"/"+id]; err != nil {
		return err
	}
	existing, ok := s.collections[collection][id]
	if !ok {
		return store.ErrNotFound
	}
	data := existing.Clone()
	for k, v := range fields {
		data[k] = v
	}
	s.put(collection, id, data)
	s.writes++
	return nil
}

// RealtimeStore is an in-memory store.RealtimeStore keyed by normalized path.
type RealtimeStore struct {
	mu       sync.RWMutex
	values   map[string]any
	readErrs map[string]error
}

// NewRealtimeStore creates an empty realtime store.
func NewRealtimeStore() *RealtimeStore {
	return &RealtimeStore{
		values:   make(map[string]any),
		readErrs: make(map[string]error),
	}
}

// FailReads makes reads of path fail with err.
func (s *RealtimeStore) FailReads(path string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErrs[normalize(path)] = err
}

// ReadPath implements store.RealtimeStore.
func (s *RealtimeStore) ReadPath(ctx context.Context, path string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := normalize(path)
	if err := s.readErrs[p]; err != nil {
		return nil, err
	}
	v, ok := s.values[p]
	if !ok || v == nil {
		return nil, store.ErrNotFound
	}
	return v, nil
}

// WritePath implements store.RealtimeStore.
func (s *RealtimeStore) WritePath(ctx context.Context, path string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[normalize(path)] = value
	return nil
}

func normalize(path string) string {
	return strings.Trim(path, "/")
}
