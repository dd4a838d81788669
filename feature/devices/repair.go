package devices

import (
	"context"
	"fmt"
	"time"

	"dispenser-sync/core/reconcile"
	"dispenser-sync/core/store"
)

// Repairer applies planned actions to the document store. Every write is
// preceded by a fresh existence check, so replaying an action, or racing a
// concurrent pass, never overwrites data the detector did not compute.
type Repairer struct {
	docs    store.DocumentStore
	timeout time.Duration
}

// NewRepairer creates a Repairer. A positive timeout bounds every store call
// it makes.
func NewRepairer(docs store.DocumentStore, timeout time.Duration) *Repairer {
	return &Repairer{docs: docs, timeout: timeout}
}

func (r *Repairer) call(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *Repairer) getDoc(ctx context.Context, collection, id string) (store.Fields, error) {
	ctx, cancel := r.call(ctx)
	defer cancel()
	return r.docs.GetDoc(ctx, collection, id)
}

func (r *Repairer) setDoc(ctx context.Context, collection, id string, fields store.Fields) error {
	ctx, cancel := r.call(ctx)
	defer cancel()
	if err := r.docs.SetDoc(ctx, collection, id, fields, true); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailure, err)
	}
	return nil
}

// Apply implements reconcile.Mutator.
func (r *Repairer) Apply(ctx context.Context, a reconcile.Action) (reconcile.Status, string, error) {
	fields, ok := a.Payload.(store.Fields)
	if !ok {
		return "", "", fmt.Errorf("action %s %s carries no fields", a.Type, a.Key)
	}

	switch a.Type {
	case ActionCreateDevice:
		return r.createDevice(ctx, a.Key, fields)
	case ActionUpdateDevice:
		return r.upgradeDevice(ctx, a.Key, fields)
	case ActionCreateLink:
		return r.createLink(ctx, a.Key, fields)
	default:
		return "", "", fmt.Errorf("unknown action type %q", a.Type)
	}
}

func (r *Repairer) createDevice(ctx context.Context, id string, fields store.Fields) (reconcile.Status, string, error) {
	exists, err := r.exists(ctx, store.CollectionDevices, id)
	if err != nil {
		return "", "", err
	}
	if exists {
		return reconcile.StatusSkipped, "device already exists", nil
	}
	if err := r.setDoc(ctx, store.CollectionDevices, id, fields); err != nil {
		return "", "", err
	}
	return reconcile.StatusCreated, "", nil
}

func (r *Repairer) upgradeDevice(ctx context.Context, id string, fields store.Fields) (reconcile.Status, string, error) {
	current, err := r.getDoc(ctx, store.CollectionDevices, id)
	if store.IsNotFound(err) {
		return reconcile.StatusUnresolvable, fmt.Sprintf("%v: device %s no longer exists", ErrReferentialGap, id), nil
	}
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrReadFailure, err)
	}
	if DeviceFromDoc(store.Doc{ID: id, Fields: current}).PrimaryPatientID != "" {
		return reconcile.StatusSkipped, "primaryPatientId already set", nil
	}
	updateCtx, cancel := r.call(ctx)
	defer cancel()
	if err := r.docs.UpdateDoc(updateCtx, store.CollectionDevices, id, fields); err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrWriteFailure, err)
	}
	return reconcile.StatusUpdated, "", nil
}

func (r *Repairer) createLink(ctx context.Context, id string, fields store.Fields) (reconcile.Status, string, error) {
	exists, err := r.exists(ctx, store.CollectionDeviceLinks, id)
	if err != nil {
		return "", "", err
	}
	if exists {
		return reconcile.StatusSkipped, "link already exists", nil
	}

	deviceID, _ := fields[FieldDeviceID].(string)
	deviceExists, err := r.exists(ctx, store.CollectionDevices, deviceID)
	if err != nil {
		return "", "", err
	}
	if !deviceExists {
		return reconcile.StatusUnresolvable, fmt.Sprintf("%v: device %s does not exist", ErrReferentialGap, deviceID), nil
	}

	if err := r.setDoc(ctx, store.CollectionDeviceLinks, id, fields); err != nil {
		return "", "", err
	}
	return reconcile.StatusCreated, "", nil
}

func (r *Repairer) exists(ctx context.Context, collection, id string) (bool, error) {
	_, err := r.getDoc(ctx, collection, id)
	switch {
	case err == nil:
		return true, nil
	case store.IsNotFound(err):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %w", ErrReadFailure, err)
	}
}
