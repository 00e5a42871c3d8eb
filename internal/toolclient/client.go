// Package toolclient invokes remote tools over HTTP, either as a single
// unary JSON call or as a server-sent-events progress stream terminating
// in one result or error event.
package toolclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrorKind classifies a failed tool call, per the tool-client error
// taxonomy: no retry happens inside the client, the caller decides.
type ErrorKind string

const (
	UnknownServer   ErrorKind = "unknown_server"
	RemoteFailure   ErrorKind = "remote_failure"
	RemoteError     ErrorKind = "remote_error"
	TruncatedStream ErrorKind = "truncated_stream"
	DeadlineExceeded ErrorKind = "deadline_exceeded"
)

// ToolError reports a failed Call, carrying enough context for the caller
// to decide on a retry policy without inspecting HTTP internals.
type ToolError struct {
	Kind    ErrorKind
	Status  int
	Body    string
	Details string
}

func (e *ToolError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("toolclient: %s (status %d): %s", e.Kind, e.Status, e.Body)
	}
	return fmt.Sprintf("toolclient: %s: %s", e.Kind, e.Details)
}

// ProgressHandler is invoked synchronously, in arrival order, for each
// "progress" event of a streaming Call.
type ProgressHandler func(data json.RawMessage)

// CallOptions configures a single Call.
type CallOptions struct {
	// Stream selects server-sent-events mode over a single JSON response.
	Stream bool
	// Progress receives each progress event when Stream is true.
	Progress ProgressHandler
	// Deadline bounds the whole operation; zero means no deadline beyond
	// ctx's own.
	Deadline time.Duration
}

// Client invokes named tools on named servers, sharing one connection
// pool across all calls (keep-alive enabled, per-host and total limits
// configured at construction).
type Client struct {
	servers map[string]string
	http    *http.Client
}

// New constructs a Client. servers maps a server name (e.g.
// "primary_tooling") to its base URL.
func New(servers map[string]string) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		servers: servers,
		http:    &http.Client{Transport: transport},
	}
}

// Call invokes tool_name on server_name with params, following the unary
// or streaming protocol selected by opts.Stream.
func (c *Client) Call(ctx context.Context, serverName, toolName string, params interface{}, opts CallOptions) (json.RawMessage, error) {
	baseURL, ok := c.servers[serverName]
	if !ok {
		return nil, &ToolError{Kind: UnknownServer, Details: fmt.Sprintf("unknown server %q", serverName)}
	}

	if opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Deadline)
		defer cancel()
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, &ToolError{Kind: RemoteFailure, Details: "marshal params: " + err.Error()}
	}

	url := fmt.Sprintf("%s/tools/%s", baseURL, toolName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &ToolError{Kind: RemoteFailure, Details: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	if opts.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &ToolError{Kind: DeadlineExceeded, Details: err.Error()}
		}
		return nil, &ToolError{Kind: RemoteFailure, Details: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, &ToolError{Kind: RemoteFailure, Status: resp.StatusCode, Body: string(b)}
	}

	if opts.Stream {
		return consumeSSE(ctx, resp.Body, opts.Progress)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ToolError{Kind: RemoteFailure, Details: err.Error()}
	}
	return json.RawMessage(raw), nil
}
