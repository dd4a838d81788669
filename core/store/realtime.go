package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"dispenser-sync/core/storage"

	"github.com/minio/minio-go/v7"
)

// ObjectRealtimeStore keeps realtime paths as JSON objects in a bucket.
// Each path maps to the object "<prefix>/<path>.json".
type ObjectRealtimeStore struct {
	client storage.Client
	bucket string
	prefix string
}

// NewObjectRealtimeStore creates a realtime store over an object storage client.
func NewObjectRealtimeStore(client storage.Client, bucket, prefix string) *ObjectRealtimeStore {
	return &ObjectRealtimeStore{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

func (s *ObjectRealtimeStore) objectName(p string) string {
	p = strings.Trim(p, "/")
	if s.prefix == "" {
		return p + ".json"
	}
	return path.Join(s.prefix, p) + ".json"
}

// ReadPath downloads and decodes the object stored for path.
func (s *ObjectRealtimeStore) ReadPath(ctx context.Context, p string) (any, error) {
	name := s.objectName(p)
	reader, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrNotFound
		}
		return nil, readErr("read", p, err)
	}
	defer reader.Close()

	// minio defers the request until the first read
	data, err := io.ReadAll(reader)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrNotFound
		}
		return nil, readErr("read", p, err)
	}

	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, readErr("decode", p, err)
	}
	if value == nil {
		return nil, ErrNotFound
	}
	return value, nil
}

// WritePath encodes value and uploads it as the object for path.
func (s *ObjectRealtimeStore) WritePath(ctx context.Context, p string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return writeErr("encode", p, err)
	}
	_, err = s.client.PutObject(
		ctx,
		s.bucket,
		s.objectName(p),
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"},
	)
	if err != nil {
		return writeErr("write", p, err)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

// String describes the backing location, used in log lines.
func (s *ObjectRealtimeStore) String() string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.prefix)
}
