package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
	"k8s.io/klog/v2"

	"ipnis/pkg/types"
)

// GCSStore keeps blobs in a Google Cloud Storage bucket, keyed by hash.
type GCSStore struct {
	Bucket string

	client *storage.Client
}

var _ Blobstore = (*GCSStore)(nil)

// UserAgent identifies ipnis in GCS requests.
const UserAgent = "ipnis"

// NewGCSStore opens a client with application default credentials unless
// opts say otherwise.
func NewGCSStore(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCSStore, error) {
	opts = append([]option.ClientOption{option.WithUserAgent(UserAgent)}, opts...)
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating GCS storage client: %w", err)
	}
	return &GCSStore{Bucket: bucket, client: client}, nil
}

// Close releases the client.
func (g *GCSStore) Close() error { return g.client.Close() }

func (g *GCSStore) url(p types.Path) string { return "gs://" + g.Bucket + "/" + p.Hash }

func (g *GCSStore) Upload(ctx context.Context, sourcePath string, p types.Path) error {
	log := klog.FromContext(ctx)

	src, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("opening source file: %w", err)
	}
	defer src.Close()

	gcsURL := g.url(p)
	obj := g.client.Bucket(g.Bucket).Object(p.Hash)
	if _, err := obj.Attrs(ctx); err == nil {
		log.Info("object already exists in GCS", "url", gcsURL)
		return nil
	} else if !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("getting object attributes for %q: %w", gcsURL, err)
	}

	log.Info("uploading blob to GCS", "source", sourcePath, "destination", gcsURL)

	startedAt := time.Now()
	w := obj.NewWriter(ctx)
	n, err := io.Copy(w, src)
	if err != nil {
		w.Close()
		return fmt.Errorf("uploading to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing GCS writer: %w", err)
	}

	log.Info("uploaded blob to GCS", "url", gcsURL, "bytes", n, "duration", time.Since(startedAt))
	return nil
}

func (g *GCSStore) Download(ctx context.Context, p types.Path, destinationPath string) error {
	log := klog.FromContext(ctx)
	gcsURL := g.url(p)

	log.Info("downloading blob from GCS", "source", gcsURL, "destination", destinationPath)

	startedAt := time.Now()
	r, err := g.client.Bucket(g.Bucket).Object(p.Hash).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("blob not found in %q: %w", gcsURL, os.ErrNotExist)
		}
		return fmt.Errorf("opening object from GCS %q: %w", gcsURL, err)
	}
	defer r.Close()

	n, err := writeToFile(ctx, r, destinationPath)
	if err != nil {
		return fmt.Errorf("downloading from GCS: %w", err)
	}

	log.Info("downloaded blob from GCS", "source", gcsURL, "destination", destinationPath, "bytes", n, "duration", time.Since(startedAt))
	return nil
}
