package store

import (
	"context"
	"errors"
	"fmt"
)

// Collection names used by the application.
const (
	CollectionUsers            = "users"
	CollectionDevices          = "devices"
	CollectionDeviceLinks      = "deviceLinks"
	CollectionMedications      = "medications"
	CollectionMedicationEvents = "medicationEvents"
)

var (
	// ErrNotFound is returned when a document or path does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrReadFailure wraps backend errors raised while reading.
	ErrReadFailure = errors.New("store: read failure")
	// ErrWriteFailure wraps backend errors raised while writing.
	ErrWriteFailure = errors.New("store: write failure")
	// ErrTimeout wraps backend calls that exceeded their deadline.
	ErrTimeout = errors.New("store: timeout")
)

// Fields is the dynamic field set of a document.
type Fields map[string]any

// Clone returns a shallow copy of the field set.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Doc is a document together with its id.
type Doc struct {
	ID     string
	Fields Fields
}

// DocumentStore is the structured collection store.
type DocumentStore interface {
	// GetDoc returns the document or ErrNotFound.
	GetDoc(ctx context.Context, collection, id string) (Fields, error)
	// ListDocs returns every document in a collection.
	ListDocs(ctx context.Context, collection string) ([]Doc, error)
	// QueryByField returns documents whose top-level field equals value.
	QueryByField(ctx context.Context, collection, field string, value any) ([]Doc, error)
	// SetDoc writes a document. With merge the given fields are merged into an
	// existing document, otherwise the document is replaced.
	SetDoc(ctx context.Context, collection, id string, fields Fields, merge bool) error
	// UpdateDoc patches an existing document; ErrNotFound if it is absent.
	UpdateDoc(ctx context.Context, collection, id string, fields Fields) error
}

// RealtimeStore is the low-latency path-addressed store.
type RealtimeStore interface {
	// ReadPath returns the value at path or ErrNotFound.
	ReadPath(ctx context.Context, path string) (any, error)
	// WritePath replaces the value at path.
	WritePath(ctx context.Context, path string, value any) error
}

// UserDevicesPath is the realtime index of device ids for a user.
func UserDevicesPath(userID string) string {
	return fmt.Sprintf("users/%s/devices", userID)
}

// DeviceConfigPath is the realtime config node of a device.
func DeviceConfigPath(deviceID string) string {
	return fmt.Sprintf("devices/%s/config", deviceID)
}

// DeviceStatePath is the realtime state node of a device.
func DeviceStatePath(deviceID string) string {
	return fmt.Sprintf("devices/%s/state", deviceID)
}

// IsNotFound reports whether err is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsTimeout reports whether err is a store call that ran out of time.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

func readErr(op, target string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s %s: %w", ErrTimeout, op, target, err)
	}
	return fmt.Errorf("%w: %s %s: %w", ErrReadFailure, op, target, err)
}

func writeErr(op, target string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s %s: %w", ErrTimeout, op, target, err)
	}
	return fmt.Errorf("%w: %s %s: %w", ErrWriteFailure, op, target, err)
}
