package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"k8s.io/klog/v2"

	"ipnis/pkg/types"
)

// HTTPReader downloads blobs from a blob server that serves each blob at
// <BaseURL>/<hash>.
type HTTPReader struct {
	BaseURL *url.URL
	Client  *http.Client
}

var _ BlobReader = (*HTTPReader)(nil)

// NewHTTPReader parses baseURL.
func NewHTTPReader(baseURL string) (*HTTPReader, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing blob server url: %w", err)
	}
	return &HTTPReader{BaseURL: u}, nil
}

func (h *HTTPReader) Download(ctx context.Context, p types.Path, destPath string) error {
	u := h.BaseURL.JoinPath(p.Hash).String()
	log := klog.FromContext(ctx)

	log.Info("downloading from url", "url", u)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	startedAt := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("blob not found: %w", os.ErrNotExist)
		}
		return fmt.Errorf("unexpected status downloading from upstream source: %v", resp.Status)
	}

	n, err := writeToFile(ctx, io.LimitReader(resp.Body, int64(p.Len)+1), destPath)
	if err != nil {
		return fmt.Errorf("downloading from %q: %w", u, err)
	}

	log.Info("downloaded blob", "url", u, "bytes", n, "duration", time.Since(startedAt))
	return nil
}
