package devices

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"dispenser-sync/core/reconcile"
	"dispenser-sync/core/store"
	"dispenser-sync/core/utils"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Entity types loaded by a pass.
const (
	EntityUsers         = "users"
	EntityDevices       = "devices"
	EntityDeviceLinks   = "deviceLinks"
	EntityRealtimeIndex = "realtimeIndex"
)

// Snapshot is the state observed by one pass. Entities loaded from different
// stores may reflect different points in time.
type Snapshot struct {
	Users         map[string]User
	Devices       map[string]Device
	Links         map[string]DeviceLink
	RealtimeIndex map[string][]string
	Incomplete    map[string]bool
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Users:         make(map[string]User),
		Devices:       make(map[string]Device),
		Links:         make(map[string]DeviceLink),
		RealtimeIndex: make(map[string][]string),
		Incomplete:    make(map[string]bool),
	}
}

// Complete reports whether every listed entity type was fully loaded.
func (s *Snapshot) Complete(entities ...string) bool {
	for _, e := range entities {
		if s.Incomplete[e] {
			return false
		}
	}
	return true
}

// Mirror is the realtime config and state of one device.
type Mirror struct {
	Config    any  `json:"config,omitempty"`
	State     any  `json:"state,omitempty"`
	HasConfig bool `json:"has_config"`
	HasState  bool `json:"has_state"`
}

// Readers load read-only snapshots from both stores.
type Readers struct {
	docs    store.DocumentStore
	rt      store.RealtimeStore
	workers int
	timeout time.Duration
}

// NewReaders creates readers bounded by opts.Workers concurrent calls, each
// limited to opts.CallTimeout.
func NewReaders(docs store.DocumentStore, rt store.RealtimeStore, opts reconcile.Options) *Readers {
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Readers{docs: docs, rt: rt, workers: workers, timeout: opts.CallTimeout}
}

func (r *Readers) call(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// LoadAllUsers returns every user.
func (r *Readers) LoadAllUsers(ctx context.Context) ([]User, error) {
	ctx, cancel := r.call(ctx)
	defer cancel()

	docs, err := r.docs.ListDocs(ctx, store.CollectionUsers)
	if err != nil {
		return nil, fmt.Errorf("%w: users: %w", ErrReadFailure, err)
	}
	users := make([]User, 0, len(docs))
	for _, d := range docs {
		users = append(users, UserFromDoc(d))
	}
	return users, nil
}

// LoadAllDevices returns every device.
func (r *Readers) LoadAllDevices(ctx context.Context) ([]Device, error) {
	ctx, cancel := r.call(ctx)
	defer cancel()

	docs, err := r.docs.ListDocs(ctx, store.CollectionDevices)
	if err != nil {
		return nil, fmt.Errorf("%w: devices: %w", ErrReadFailure, err)
	}
	devices := make([]Device, 0, len(docs))
	for _, d := range docs {
		devices = append(devices, DeviceFromDoc(d))
	}
	return devices, nil
}

// LoadDeviceLink returns the link for the pair, or nil when it is absent.
func (r *Readers) LoadDeviceLink(ctx context.Context, deviceID, userID string) (*DeviceLink, error) {
	ctx, cancel := r.call(ctx)
	defer cancel()

	id := LinkID(deviceID, userID)
	fields, err := r.docs.GetDoc(ctx, store.CollectionDeviceLinks, id)
	if store.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: deviceLinks/%s: %w", ErrReadFailure, id, err)
	}
	link := LinkFromDoc(store.Doc{ID: id, Fields: fields})
	return &link, nil
}

// LoadRealtimeDevicesFor returns the sorted device ids in a user's realtime
// index. A missing index is an empty set.
func (r *Readers) LoadRealtimeDevicesFor(ctx context.Context, userID string) ([]string, error) {
	ctx, cancel := r.call(ctx)
	defer cancel()

	v, err := r.rt.ReadPath(ctx, store.UserDevicesPath(userID))
	if store.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrReadFailure, store.UserDevicesPath(userID), err)
	}
	ids, _ := utils.ToStringList(v)
	sort.Strings(ids)
	return ids, nil
}

// LoadRealtimeMirror returns the realtime config and state of a device.
func (r *Readers) LoadRealtimeMirror(ctx context.Context, deviceID string) (Mirror, error) {
	var m Mirror
	var err error
	if m.Config, m.HasConfig, err = r.readOptional(ctx, store.DeviceConfigPath(deviceID)); err != nil {
		return Mirror{}, err
	}
	if m.State, m.HasState, err = r.readOptional(ctx, store.DeviceStatePath(deviceID)); err != nil {
		return Mirror{}, err
	}
	return m, nil
}

func (r *Readers) readOptional(ctx context.Context, path string) (any, bool, error) {
	ctx, cancel := r.call(ctx)
	defer cancel()

	v, err := r.rt.ReadPath(ctx, path)
	if store.IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s: %w", ErrReadFailure, path, err)
	}
	return v, true, nil
}

// Load reads the full snapshot for a pass. A failing entity type is marked
// incomplete in the report and left empty; loading continues with the rest.
func (r *Readers) Load(ctx context.Context, report *reconcile.Report, l *zap.Logger) *Snapshot {
	snap := NewSnapshot()

	fail := func(entity string, err error) {
		snap.Incomplete[entity] = true
		report.MarkIncomplete(entity, err)
		l.Warn("Entity load incomplete", zap.String("entity", entity), zap.Error(err))
	}
	loaded := func(entity string, count int, started time.Time) {
		l.Info("Entity loaded",
			zap.String("entity", entity),
			zap.Int("count", count),
			zap.Duration("duration", time.Since(started)),
		)
	}

	started := time.Now()
	if users, err := r.LoadAllUsers(ctx); err != nil {
		fail(EntityUsers, err)
	} else {
		for _, u := range users {
			snap.Users[u.ID] = u
		}
		loaded(EntityUsers, len(users), started)
	}

	started = time.Now()
	if devices, err := r.LoadAllDevices(ctx); err != nil {
		fail(EntityDevices, err)
	} else {
		for _, d := range devices {
			snap.Devices[d.ID] = d
		}
		loaded(EntityDevices, len(devices), started)
	}

	// The realtime index is enumerated per user.
	started = time.Now()
	if !snap.Complete(EntityUsers) {
		fail(EntityRealtimeIndex, fmt.Errorf("%w: user list unavailable", ErrReadFailure))
	} else if index, err := r.loadRealtimeIndex(ctx, snap.Users); err != nil {
		fail(EntityRealtimeIndex, err)
	} else {
		snap.RealtimeIndex = index
		loaded(EntityRealtimeIndex, len(index), started)
	}

	// Links are only meaningful once both sides of every pair are known.
	if !snap.Complete(EntityUsers, EntityDevices) {
		return snap
	}
	started = time.Now()
	if links, err := r.loadLinks(ctx, ImpliedLinks(snap)); err != nil {
		fail(EntityDeviceLinks, err)
	} else {
		snap.Links = links
		loaded(EntityDeviceLinks, len(links), started)
	}

	return snap
}

func (r *Readers) loadRealtimeIndex(ctx context.Context, users map[string]User) (map[string][]string, error) {
	index := make(map[string][]string)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for id := range users {
		id := id
		g.Go(func() error {
			ids, err := r.LoadRealtimeDevicesFor(gctx, id)
			if err != nil {
				return err
			}
			if len(ids) > 0 {
				mu.Lock()
				index[id] = ids
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return index, nil
}

func (r *Readers) loadLinks(ctx context.Context, implied []ImpliedLink) (map[string]DeviceLink, error) {
	links := make(map[string]DeviceLink)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, il := range implied {
		il := il
		g.Go(func() error {
			link, err := r.LoadDeviceLink(gctx, il.DeviceID, il.UserID)
			if err != nil {
				return err
			}
			if link != nil {
				mu.Lock()
				links[link.ID] = *link
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return links, nil
}
