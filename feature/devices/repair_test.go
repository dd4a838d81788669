package devices

import (
	"context"
	"errors"
	"testing"
	"time"

	"dispenser-sync/core/reconcile"
	"dispenser-sync/core/store"
	"dispenser-sync/core/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairer_CreateDevice(t *testing.T) {
	ctx := context.Background()
	docs := memory.NewDocumentStore()
	r := NewRepairer(docs, 0)

	action := reconcile.Action{Type: ActionCreateDevice, Key: "deviceA", Payload: deviceFields("user1", []string{"user1"}, fixedNow)}

	status, _, err := r.Apply(ctx, action)
	require.NoError(t, err)
	assert.Equal(t, reconcile.StatusCreated, status)

	// Replaying must not overwrite.
	docs.Put(store.CollectionDevices, "deviceA", store.Fields{FieldPrimaryPatientID: "someone-else"})
	status, reason, err := r.Apply(ctx, action)
	require.NoError(t, err)
	assert.Equal(t, reconcile.StatusSkipped, status)
	assert.Equal(t, "device already exists", reason)
	assert.Equal(t, "someone-else", docs.Snapshot(store.CollectionDevices)["deviceA"][FieldPrimaryPatientID])
}

func TestRepairer_UpgradeDevice(t *testing.T) {
	ctx := context.Background()
	docs := memory.NewDocumentStore()
	docs.Put(store.CollectionDevices, "legacy", store.Fields{FieldLinkedUsers: []any{"user2"}, "firmware": "1.0"})
	docs.Put(store.CollectionDevices, "raced", store.Fields{FieldPrimaryPatientID: "user9"})
	r := NewRepairer(docs, 0)

	tests := []struct {
		name       string
		key        string
		wantStatus reconcile.Status
	}{
		{"Upgrades", "legacy", reconcile.StatusUpdated},
		{"AlreadyUpgraded", "raced", reconcile.StatusSkipped},
		{"Vanished", "gone", reconcile.StatusUnresolvable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _, err := r.Apply(ctx, reconcile.Action{Type: ActionUpdateDevice, Key: tt.key, Payload: upgradeFields("user2")})
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, status)
		})
	}

	legacy := docs.Snapshot(store.CollectionDevices)["legacy"]
	assert.Equal(t, "user2", legacy[FieldPrimaryPatientID])
	assert.Equal(t, "1.0", legacy["firmware"])
	assert.Equal(t, "user9", docs.Snapshot(store.CollectionDevices)["raced"][FieldPrimaryPatientID])
}

func TestRepairer_CreateLink(t *testing.T) {
	ctx := context.Background()
	docs := memory.NewDocumentStore()
	docs.Put(store.CollectionDevices, "deviceA", store.Fields{})
	docs.Put(store.CollectionDeviceLinks, "deviceA_revoked", store.Fields{FieldStatus: string(LinkRevoked)})
	r := NewRepairer(docs, 0)

	link := func(deviceID, userID string) reconcile.Action {
		return reconcile.Action{
			Type:    ActionCreateLink,
			Key:     LinkID(deviceID, userID),
			Payload: linkFields(deviceID, userID, RolePatient, fixedNow),
		}
	}

	status, _, err := r.Apply(ctx, link("deviceA", "user1"))
	require.NoError(t, err)
	assert.Equal(t, reconcile.StatusCreated, status)

	status, _, err = r.Apply(ctx, link("deviceA", "revoked"))
	require.NoError(t, err)
	assert.Equal(t, reconcile.StatusSkipped, status)
	assert.Equal(t, string(LinkRevoked), docs.Snapshot(store.CollectionDeviceLinks)["deviceA_revoked"][FieldStatus])

	status, reason, err := r.Apply(ctx, link("ghost", "user1"))
	require.NoError(t, err)
	assert.Equal(t, reconcile.StatusUnresolvable, status)
	assert.Contains(t, reason, "device ghost does not exist")
}

func TestRepairer_Errors(t *testing.T) {
	ctx := context.Background()
	docs := memory.NewDocumentStore()
	docs.FailWrites(store.CollectionDevices, "deviceA", errors.New("permission denied"))
	r := NewRepairer(docs, 0)

	_, _, err := r.Apply(ctx, reconcile.Action{Type: ActionCreateDevice, Key: "deviceA", Payload: deviceFields("u", nil, fixedNow)})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWriteFailure)
	assert.Contains(t, err.Error(), "permission denied")

	_, _, err = r.Apply(ctx, reconcile.Action{Type: ActionCreateDevice, Key: "deviceB"})
	assert.Error(t, err)

	_, _, err = r.Apply(ctx, reconcile.Action{Type: "delete_everything", Key: "deviceB", Payload: store.Fields{}})
	assert.Error(t, err)

	docs.FailReads(store.CollectionDeviceLinks, errors.New("unavailable"))
	_, _, err = r.Apply(ctx, reconcile.Action{Type: ActionCreateLink, Key: "deviceA_u", Payload: linkFields("deviceA", "u", RolePatient, fixedNow)})
	assert.ErrorIs(t, err, ErrReadFailure)
}

// slowDocs delays every document call by delay, giving up early when the
// call's context expires.
type slowDocs struct {
	*memory.DocumentStore
	delay time.Duration
}

func (s *slowDocs) wait(ctx context.Context) error {
	select {
	case <-time.After(s.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *slowDocs) GetDoc(ctx context.Context, collection, id string) (store.Fields, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return s.DocumentStore.GetDoc(ctx, collection, id)
}

func (s *slowDocs) SetDoc(ctx context.Context, collection, id string, fields store.Fields, merge bool) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	return s.DocumentStore.SetDoc(ctx, collection, id, fields, merge)
}

func TestRepairer_TimeoutPerStoreCall(t *testing.T) {
	action := reconcile.Action{Type: ActionCreateLink, Key: "deviceA_u", Payload: linkFields("deviceA", "u", RolePatient, fixedNow)}

	t.Run("Calls within budget", func(t *testing.T) {
		mem := memory.NewDocumentStore()
		mem.Put(store.CollectionDevices, "deviceA", store.Fields{})
		// Three calls of 80ms exceed 200ms together but not individually.
		r := NewRepairer(&slowDocs{DocumentStore: mem, delay: 80 * time.Millisecond}, 200*time.Millisecond)

		status, _, err := r.Apply(context.Background(), action)
		require.NoError(t, err)
		assert.Equal(t, reconcile.StatusCreated, status)
	})

	t.Run("Single call over budget", func(t *testing.T) {
		mem := memory.NewDocumentStore()
		mem.Put(store.CollectionDevices, "deviceA", store.Fields{})
		r := NewRepairer(&slowDocs{DocumentStore: mem, delay: time.Second}, 30*time.Millisecond)

		_, _, err := r.Apply(context.Background(), action)
		require.Error(t, err)
		assert.True(t, store.IsTimeout(err))
		assert.Empty(t, mem.Snapshot(store.CollectionDeviceLinks))
	})
}
