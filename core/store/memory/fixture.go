package memory

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"dispenser-sync/core/store"

	"gopkg.in/yaml.v3"
)

// Fixture is a point-in-time export of both stores.
//
//	documents:
//	  users:
//	    user1: {role: patient}
//	realtime:
//	  users/user1/devices: {deviceA: true}
type Fixture struct {
	Documents map[string]map[string]map[string]any `yaml:"documents"`
	Realtime  map[string]any                       `yaml:"realtime"`
}

// LoadFixture decodes a YAML fixture.
func LoadFixture(r io.Reader) (*Fixture, error) {
	var f Fixture
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode fixture: %w", err)
	}
	return &f, nil
}

// LoadFixtureFile opens and decodes a YAML fixture file.
func LoadFixtureFile(path string) (*Fixture, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixture: %w", err)
	}
	defer file.Close()
	return LoadFixture(file)
}

// Stores builds in-memory stores holding the fixture contents.
func (f *Fixture) Stores() (*DocumentStore, *RealtimeStore) {
	docs := NewDocumentStore()
	rt := NewRealtimeStore()
	for collection, byID := range f.Documents {
		for id, fields := range byID {
			docs.Put(collection, id, store.Fields(fields))
		}
	}
	for path, value := range f.Realtime {
		rt.values[normalize(path)] = value
	}
	return docs, rt
}

// Seed writes the fixture into arbitrary stores. Documents are merged so
// seeding twice is harmless.
func (f *Fixture) Seed(ctx context.Context, docs store.DocumentStore, rt store.RealtimeStore) (int, error) {
	written := 0
	for _, collection := range sortedKeys(f.Documents) {
		byID := f.Documents[collection]
		for _, id := range sortedKeys(byID) {
			if err := docs.SetDoc(ctx, collection, id, store.Fields(byID[id]), true); err != nil {
				return written, err
			}
			written++
		}
	}
	for _, path := range sortedKeys(f.Realtime) {
		if err := rt.WritePath(ctx, path, f.Realtime[path]); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
