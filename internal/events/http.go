package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// HTTPEmitter sends run events to an HTTP endpoint, with a local file
// backup written before every POST.
type HTTPEmitter struct {
	cfg          Config
	client       *http.Client
	chainTracker *ChainTracker
	backup       *FileBackup
	log          *slog.Logger
}

// NewHTTPEmitter creates an HTTP emitter.
func NewHTTPEmitter(cfg Config) (*HTTPEmitter, error) {
	chainTracker, err := NewChainTracker(cfg.BackupDir)
	if err != nil {
		return nil, fmt.Errorf("create chain tracker: %w", err)
	}

	backup, err := NewFileBackup(cfg.BackupDir)
	if err != nil {
		return nil, fmt.Errorf("create file backup: %w", err)
	}

	return &HTTPEmitter{
		cfg: cfg,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		chainTracker: chainTracker,
		backup:       backup,
		log:          slog.With("component", "events"),
	}, nil
}

// EmitRun chains, hashes, backs up and posts a run event.
func (e *HTTPEmitter) EmitRun(ctx context.Context, evt *RunEvent) error {
	chainKey := evt.Run.ChainKey()

	prevHash, err := e.chainTracker.GetHead(chainKey)
	if err != nil && !errors.Is(err, ErrNoChainHead) {
		return fmt.Errorf("get chain head: %w", err)
	}

	evt.EventID = GenerateEventID()
	evt.Timestamp = time.Now().UTC()
	evt.Version = "1.0"
	evt.EventType = "run_completed"
	evt.SetChainHashes(prevHash)

	e.log.Info("emitting run event",
		"sample", evt.Run.Sample,
		"run_id", evt.Run.RunID,
		"prev_hash", prevHash,
		"event_hash", evt.Chain.EventHash)

	// Backup locally first; HTTP is the primary path but the file copy
	// survives endpoint outages.
	if err := e.backup.Save(evt); err != nil {
		e.log.Warn("backup failed", "error", err)
	}

	if err := e.postWithRetry(ctx, evt); err != nil {
		return fmt.Errorf("event emit failed: %w", err)
	}

	if err := e.chainTracker.SetHead(chainKey, evt.Chain.EventHash); err != nil {
		e.log.Warn("failed to update chain head", "error", err)
	}

	return nil
}

// postWithRetry sends the event to the endpoint with retries.
func (e *HTTPEmitter) postWithRetry(ctx context.Context, evt *RunEvent) error {
	var lastErr error
	retries := 3
	delay := time.Second

	for attempt := 1; attempt <= retries; attempt++ {
		err := e.post(ctx, evt)
		if err == nil {
			return nil
		}

		lastErr = err
		if attempt < retries {
			e.log.Warn("emit attempt failed",
				"attempt", attempt, "retries", retries, "error", err, "backoff", delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", retries, lastErr)
}

// post sends a single POST request to the endpoint.
func (e *HTTPEmitter) post(ctx context.Context, evt *RunEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		e.log.Debug("posted event", "endpoint", e.cfg.Endpoint, "status", resp.StatusCode)
		return nil
	}

	respBody, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("http %d: %s", resp.StatusCode, string(respBody))
}

// Close releases resources.
func (e *HTTPEmitter) Close() error {
	return nil
}
