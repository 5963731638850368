package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/scrapinium/liveclient/internal/store"
)

const requestTimeout = 15 * time.Second

// APIError is an application-level failure: the server answered, but with
// success=false or a non-2xx status. It carries the server-provided message
// and is always recoverable.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server error (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("server error (HTTP %d)", e.Status)
}

// apiEnvelope is the response shape of every collaborator endpoint.
type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// API is the request/response collaborator used for the initial load, the
// polling fallback, and one-shot operations like batch cancellation.
type API struct {
	base     string
	token    string
	clientID string
	http     *http.Client
	log      zerolog.Logger
}

// NewAPI creates an API client for the given HTTP base URL.
func NewAPI(base, token, clientID string, log zerolog.Logger) *API {
	return &API{
		base:     base,
		token:    token,
		clientID: clientID,
		http:     &http.Client{Timeout: requestTimeout},
		log:      log.With().Str("component", "api").Logger(),
	}
}

// ListTasks fetches up to limit tasks.
func (a *API) ListTasks(ctx context.Context, limit int) ([]store.Record, error) {
	return a.list(ctx, "/api/tasks", limit)
}

// GetTask fetches a single task result by identifier.
func (a *API) GetTask(ctx context.Context, id string) (store.Record, error) {
	return a.get(ctx, "/api/tasks/"+id)
}

// ListBatches fetches up to limit batch jobs.
func (a *API) ListBatches(ctx context.Context, limit int) ([]store.Record, error) {
	return a.list(ctx, "/api/batches", limit)
}

// GetBatch fetches a single batch by identifier.
func (a *API) GetBatch(ctx context.Context, id string) (store.Record, error) {
	return a.get(ctx, "/api/batches/"+id)
}

// CancelBatch asks the server to cancel a batch job.
func (a *API) CancelBatch(ctx context.Context, id string) error {
	_, err := a.do(ctx, http.MethodPost, "/api/batches/"+id+"/cancel")
	return err
}

// Stats fetches the aggregate scraping stats.
func (a *API) Stats(ctx context.Context) (map[string]any, error) {
	return a.stats(ctx, "/api/stats")
}

// BrowserStats fetches browser-pool stats.
func (a *API) BrowserStats(ctx context.Context) (map[string]any, error) {
	return a.stats(ctx, "/api/stats/browser")
}

// CacheStats fetches cache stats.
func (a *API) CacheStats(ctx context.Context) (map[string]any, error) {
	return a.stats(ctx, "/api/stats/cache")
}

// MemoryStats fetches memory stats.
func (a *API) MemoryStats(ctx context.Context) (map[string]any, error) {
	return a.stats(ctx, "/api/stats/memory")
}

// Health probes the server health endpoint. Used by the --check mode.
func (a *API) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.base+"/health", nil)
	if err != nil {
		return err
	}
	a.setHeaders(req)

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &APIError{Status: resp.StatusCode}
	}
	return nil
}

func (a *API) list(ctx context.Context, path string, limit int) ([]store.Record, error) {
	url := path
	if limit > 0 {
		url += "?limit=" + strconv.Itoa(limit)
	}
	data, err := a.do(ctx, http.MethodGet, url)
	if err != nil {
		return nil, err
	}

	var items []map[string]any
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", path, err)
	}

	records := make([]store.Record, 0, len(items))
	for _, item := range items {
		records = append(records, toRecord(item))
	}
	return records, nil
}

func (a *API) get(ctx context.Context, path string) (store.Record, error) {
	data, err := a.do(ctx, http.MethodGet, path)
	if err != nil {
		return store.Record{}, err
	}

	var item map[string]any
	if err := json.Unmarshal(data, &item); err != nil {
		return store.Record{}, fmt.Errorf("decode %s response: %w", path, err)
	}
	return toRecord(item), nil
}

func (a *API) stats(ctx context.Context, path string) (map[string]any, error) {
	data, err := a.do(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}

	var snapshot map[string]any
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", path, err)
	}
	return snapshot, nil
}

// do executes one request and unwraps the {success, data, message} envelope.
// A transport failure comes back as-is; an application-level failure comes
// back as *APIError.
func (a *API) do(ctx context.Context, method, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, method, a.base+path, nil)
	if err != nil {
		return nil, err
	}
	a.setHeaders(req)

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		if resp.StatusCode >= 400 {
			return nil, &APIError{Status: resp.StatusCode}
		}
		return nil, fmt.Errorf("decode %s %s response: %w", method, path, err)
	}

	if resp.StatusCode >= 400 || !env.Success {
		a.log.Debug().Int("status", resp.StatusCode).Str("path", path).Str("message", env.Message).Msg("request rejected")
		return nil, &APIError{Status: resp.StatusCode, Message: env.Message}
	}
	return env.Data, nil
}

func (a *API) setHeaders(req *http.Request) {
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	req.Header.Set("X-Client-ID", a.clientID)
	req.Header.Set("Accept", "application/json")
}

// toRecord extracts the identifier from a fetched object. The server names
// it "id" on batches and "task_id" on task results.
func toRecord(item map[string]any) store.Record {
	id, _ := item["id"].(string)
	if id == "" {
		id, _ = item["task_id"].(string)
	}
	return store.Record{ID: id, Fields: item}
}
