package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// SSETransport implements the classic MCP SSE transport: the client opens
// a long-lived GET to the server's SSE endpoint, the server replies with
// an "endpoint" event naming the URL to POST requests to, and responses
// to those requests arrive asynchronously as further SSE "message"
// events rather than as the POST's own response body.
type SSETransport struct {
	config *ServerConfig
	logger *slog.Logger
	client *http.Client

	postURL   atomic.Pointer[string]
	postReady chan struct{}
	readyOnce sync.Once

	pending   map[string]chan *JSONRPCResponse
	pendingMu sync.Mutex

	connected atomic.Bool
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewSSETransport creates a new SSE transport.
func NewSSETransport(cfg *ServerConfig) *SSETransport {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &SSETransport{
		config:    cfg,
		logger:    slog.Default().With("mcp_server", cfg.ID, "transport", "sse"),
		client:    &http.Client{Timeout: timeout},
		postReady: make(chan struct{}),
		pending:   make(map[string]chan *JSONRPCResponse),
		stopChan:  make(chan struct{}),
	}
}

// Connect opens the SSE stream and waits for the server's endpoint event.
func (t *SSETransport) Connect(ctx context.Context) error {
	if t.config.URL == "" {
		return fmt.Errorf("URL is required for SSE transport")
	}

	t.wg.Add(1)
	go t.readLoop(ctx)

	select {
	case <-t.postReady:
	case <-time.After(t.config.Timeout + 5*time.Second):
		return fmt.Errorf("timed out waiting for SSE endpoint event")
	case <-ctx.Done():
		return ctx.Err()
	}

	t.connected.Store(true)
	t.logger.Info("SSE transport ready", "url", t.config.URL)
	return nil
}

// Close closes the SSE connection.
func (t *SSETransport) Close() error {
	t.connected.Store(false)
	close(t.stopChan)
	t.wg.Wait()
	return nil
}

// Call posts a request to the discovered endpoint and waits for its
// matching response on the SSE stream.
func (t *SSETransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !t.connected.Load() {
		return nil, fmt.Errorf("not connected")
	}

	id := uuid.New().String()
	req := JSONRPCRequest{JSONRPC: "2.0", ID: id, Method: method}
	if params != nil {
		paramsJSON, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		req.Params = paramsJSON
	}

	respChan := make(chan *JSONRPCResponse, 1)
	t.pendingMu.Lock()
	t.pending[id] = respChan
	t.pendingMu.Unlock()
	defer func() {
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
	}()

	if err := t.post(ctx, req); err != nil {
		return nil, err
	}

	timeout := t.config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	select {
	case resp := <-respChan:
		if resp.Error != nil {
			return nil, fmt.Errorf("MCP error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, fmt.Errorf("request timeout after %v", timeout)
	case <-t.stopChan:
		return nil, fmt.Errorf("transport closed")
	}
}

// Notify posts a notification to the discovered endpoint.
func (t *SSETransport) Notify(ctx context.Context, method string, params any) error {
	if !t.connected.Load() {
		return fmt.Errorf("not connected")
	}
	notif := JSONRPCNotification{JSONRPC: "2.0", Method: method}
	if params != nil {
		paramsJSON, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		notif.Params = paramsJSON
	}
	return t.post(ctx, notif)
}

func (t *SSETransport) post(ctx context.Context, payload any) error {
	postURL := t.postURL.Load()
	if postURL == nil {
		return fmt.Errorf("SSE endpoint not yet discovered")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, *postURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range t.config.Headers {
		httpReq.Header.Set(k, v)
	}
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Connected returns whether the transport is connected.
func (t *SSETransport) Connected() bool {
	return t.connected.Load()
}

func (t *SSETransport) readLoop(ctx context.Context) {
	defer t.wg.Done()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.config.URL, nil)
	if err != nil {
		t.logger.Error("failed to create SSE request", "error", err)
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	for k, v := range t.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Error("SSE connection failed", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.logger.Error("SSE returned non-200", "status", resp.StatusCode)
		return
	}

	var eventName string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		select {
		case <-t.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			eventName = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data := strings.TrimPrefix(line, "data: ")
			t.handleEvent(eventName, data)
			eventName = ""
		case line == "":
			eventName = ""
		}
	}
	if err := scanner.Err(); err != nil {
		t.logger.Debug("SSE scanner error", "error", err)
	}
}

func (t *SSETransport) handleEvent(eventName, data string) {
	if eventName == "endpoint" {
		resolved := data
		if base, err := url.Parse(t.config.URL); err == nil {
			if rel, err := url.Parse(data); err == nil {
				resolved = base.ResolveReference(rel).String()
			}
		}
		t.postURL.Store(&resolved)
		t.readyOnce.Do(func() { close(t.postReady) })
		return
	}

	var resp JSONRPCResponse
	if err := json.Unmarshal([]byte(data), &resp); err == nil && resp.ID != nil {
		key := fmt.Sprintf("%v", resp.ID)
		t.pendingMu.Lock()
		if ch, ok := t.pending[key]; ok {
			select {
			case ch <- &resp:
			default:
			}
			delete(t.pending, key)
		}
		t.pendingMu.Unlock()
		return
	}

	var notif JSONRPCNotification
	if err := json.Unmarshal([]byte(data), &notif); err == nil && notif.Method != "" {
		t.logger.Debug("ignoring server-initiated message outside the tool-call contract", "method", notif.Method)
	}
}
