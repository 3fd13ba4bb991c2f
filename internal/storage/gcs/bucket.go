package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

var (
	errObjectMissing = errors.New("object does not exist")
	errObjectExists  = errors.New("object already exists")
)

// objects is the slice of bucket behaviour the store relies on.
type objects interface {
	// Put writes data at key. With create set it fails with errObjectExists when key is taken.
	Put(ctx context.Context, key string, data []byte, create bool) error
	// Get returns errObjectMissing for unknown keys.
	Get(ctx context.Context, key string) ([]byte, error)
	// Keys lists object names under prefix in lexical order.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Ping(ctx context.Context) error
}

// ClientOptions configures the storage client. Both fields are optional; without a
// credentials file Application Default Credentials are used.
type ClientOptions struct {
	CredentialsFile string
	Endpoint        string
}

type bucket struct {
	client *storage.Client
	handle *storage.BucketHandle
}

func openBucket(ctx context.Context, name string, opts ClientOptions) (*bucket, error) {
	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint), option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &bucket{client: client, handle: client.Bucket(name)}, nil
}

func (b *bucket) Put(ctx context.Context, key string, data []byte, create bool) error {
	obj := b.handle.Object(key)
	if create {
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	}
	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
			return errObjectExists
		}
		return fmt.Errorf("finalize object %s: %w", key, err)
	}
	return nil
}

func (b *bucket) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := b.handle.Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, errObjectMissing
		}
		return nil, fmt.Errorf("open object %s: %w", key, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

func (b *bucket) Keys(ctx context.Context, prefix string) ([]string, error) {
	it := b.handle.Objects(ctx, &storage.Query{Prefix: prefix})
	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects %s: %w", prefix, err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}

func (b *bucket) Ping(ctx context.Context) error {
	if _, err := b.handle.Attrs(ctx); err != nil {
		return fmt.Errorf("bucket attrs: %w", err)
	}
	return nil
}

func (b *bucket) Close() error {
	return b.client.Close()
}
