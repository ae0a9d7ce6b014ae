package recording

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSBackend stores recordings in a JetStream object store bucket.
type NATSBackend struct {
	bucket string
	store  nats.ObjectStore
}

// NewNATSBackend creates the bucket, or binds to it when it already exists.
func NewNATSBackend(js nats.JetStreamContext, bucket string) (*NATSBackend, error) {
	store, err := js.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucket,
		Description: "callqa merged call recordings",
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("create object store bucket %q: %w", bucket, err)
		}
		store, err = js.ObjectStore(bucket)
		if err != nil {
			return nil, fmt.Errorf("bind object store bucket %q: %w", bucket, err)
		}
	}
	return &NATSBackend{bucket: bucket, store: store}, nil
}

func (b *NATSBackend) Name() string { return "nats" }

// Bucket returns the object store bucket name.
func (b *NATSBackend) Bucket() string { return b.bucket }

func (b *NATSBackend) Put(_ context.Context, key string, data []byte) error {
	if _, err := b.store.Put(&nats.ObjectMeta{Name: key}, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("put object %q to bucket %q: %w", key, b.bucket, err)
	}
	return nil
}

func (b *NATSBackend) Get(_ context.Context, key string) ([]byte, error) {
	obj, err := b.store.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("get object %q from bucket %q: %w", key, b.bucket, err)
	}
	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()
	if readErr != nil {
		return nil, fmt.Errorf("read object %q: %w", key, readErr)
	}
	if closeErr != nil {
		return data, fmt.Errorf("close object %q: %w", key, closeErr)
	}
	return data, nil
}

func (b *NATSBackend) Delete(_ context.Context, key string) error {
	if err := b.store.Delete(key); err != nil && !errors.Is(err, nats.ErrObjectNotFound) {
		return fmt.Errorf("delete object %q from bucket %q: %w", key, b.bucket, err)
	}
	return nil
}

func (b *NATSBackend) Check(_ context.Context) error {
	if _, err := b.store.Status(); err != nil {
		return fmt.Errorf("object store bucket %q unavailable: %w", b.bucket, err)
	}
	return nil
}
