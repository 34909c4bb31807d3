// Package service is the HTTP client for the network analysis service: it
// uploads configuration snapshots and fetches the topology, policy and
// declaration row sets the converter consumes.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/minnowtool/minnow"
	"github.com/minnowtool/minnow/topology"
)

// Client talks to one analysis service instance for one network.
type Client struct {
	base    string
	network string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient probes the service's status endpoint and returns a client once
// the service answers. The probe retries cfg.Retries additional times with a
// short backoff; a service that never answers is fatal at startup.
func NewClient(ctx context.Context, cfg minnow.ServiceConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		base:    strings.TrimRight(cfg.Address, "/"),
		network: cfg.Network,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}

	var lastErr error

	for attempt := 0; attempt <= cfg.Retries; attempt++ {
		if attempt > 0 {
			logger.Warn("service status probe failed, retrying",
				zap.Int("attempt", attempt),
				zap.Error(lastErr))

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Second):
			}
		}

		if lastErr = c.ping(ctx); lastErr == nil {
			logger.Debug("service reachable", zap.String("address", c.base))
			return c, nil
		}
	}

	return nil, fmt.Errorf("%w: %s: %v", minnow.ErrServiceUnavailable, c.base, lastErr)
}

func (c *Client) ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/v2/status", nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status probe returned %s", minnow.ErrServiceStatus, resp.Status)
	}

	return nil
}

// snapshotPayload is the upload body: configuration file name to contents.
type snapshotPayload struct {
	Name  string            `json:"name"`
	Files map[string]string `json:"files"`
}

// UploadSnapshot reads every file under dir and uploads it as a new snapshot
// with a generated name. The snapshot name is returned for the follow-up row
// queries.
func (c *Client) UploadSnapshot(ctx context.Context, dir string) (string, error) {
	files := make(map[string]string)

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		files[filepath.ToSlash(rel)] = string(data)

		return nil
	})
	if err != nil {
		return "", fmt.Errorf("read configuration directory %q: %w", dir, err)
	}

	name := fmt.Sprintf("%s-%s", filepath.Base(dir), uuid.NewString())

	c.logger.Info("uploading snapshot",
		zap.String("snapshot", name),
		zap.Int("files", len(files)))

	body, err := json.Marshal(snapshotPayload{Name: name, Files: files})
	if err != nil {
		return "", err
	}

	path := fmt.Sprintf("/v2/networks/%s/snapshots", url.PathEscape(c.network))
	if err := c.post(ctx, path, body); err != nil {
		return "", fmt.Errorf("upload snapshot %q: %w", name, err)
	}

	return name, nil
}

// FetchDocument runs the three row queries against an uploaded snapshot and
// assembles the raw document the converter consumes.
func (c *Client) FetchDocument(ctx context.Context, snapshot string) (*topology.RawDocument, error) {
	doc := &topology.RawDocument{}

	if err := c.rows(ctx, snapshot, "topology", &doc.Topology); err != nil {
		return nil, err
	}

	if err := c.rows(ctx, snapshot, "nodeProperties", &doc.Policy); err != nil {
		return nil, err
	}

	if err := c.rows(ctx, snapshot, "namedStructures", &doc.Declarations); err != nil {
		return nil, err
	}

	c.logger.Info("document fetched",
		zap.String("snapshot", snapshot),
		zap.Int("edges", len(doc.Topology)),
		zap.Int("nodes", len(doc.Policy)),
		zap.Int("declarations", len(doc.Declarations)))

	return doc, nil
}

func (c *Client) rows(ctx context.Context, snapshot, question string, out any) error {
	path := fmt.Sprintf("/v2/networks/%s/snapshots/%s/answers/%s",
		url.PathEscape(c.network), url.PathEscape(snapshot), url.PathEscape(question))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("query %q: %w", question, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: query %q returned %s", minnow.ErrServiceStatus, question, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("query %q: %w", question, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: query %q: %v", minnow.ErrMalformedDocument, question, err)
	}

	return nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%w: %s", minnow.ErrServiceStatus, resp.Status)
	}

	return nil
}
