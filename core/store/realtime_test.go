package store

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"dispenser-sync/core/storage/mocks"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestObjectRealtimeStore_ReadPath(t *testing.T) {
	client := new(mocks.Client)
	rt := NewObjectRealtimeStore(client, "rt", "/rtdb/")

	client.On("GetObject", mock.Anything, "rt", "rtdb/users/u1/devices.json", mock.Anything).
		Return(io.NopCloser(strings.NewReader(`{"deviceA":true}`)), nil)

	value, err := rt.ReadPath(context.Background(), UserDevicesPath("u1"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"deviceA": true}, value)
}

func TestObjectRealtimeStore_ReadPathMissing(t *testing.T) {
	client := new(mocks.Client)
	rt := NewObjectRealtimeStore(client, "rt", "rtdb")

	client.On("GetObject", mock.Anything, "rt", "rtdb/devices/d1/config.json", mock.Anything).
		Return(nil, minio.ErrorResponse{Code: "NoSuchKey"})

	_, err := rt.ReadPath(context.Background(), DeviceConfigPath("d1"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestObjectRealtimeStore_ReadPathFailure(t *testing.T) {
	client := new(mocks.Client)
	rt := NewObjectRealtimeStore(client, "rt", "")

	client.On("GetObject", mock.Anything, "rt", "devices/d1/state.json", mock.Anything).
		Return(nil, errors.New("access denied"))

	_, err := rt.ReadPath(context.Background(), DeviceStatePath("d1"))
	assert.ErrorIs(t, err, ErrReadFailure)
}

func TestObjectRealtimeStore_WritePath(t *testing.T) {
	client := new(mocks.Client)
	rt := NewObjectRealtimeStore(client, "rt", "rtdb")

	client.On("PutObject", mock.Anything, "rt", "rtdb/users/u1/devices.json", mock.Anything, int64(16), mock.Anything).
		Return(minio.UploadInfo{}, nil)

	err := rt.WritePath(context.Background(), UserDevicesPath("u1"), map[string]any{"deviceA": true})
	require.NoError(t, err)
	client.AssertExpectations(t)
}
