// Package http provides the default HTTP transport for the relay SDK:
// flag fetches over REST and push updates over SSE.
//
//	import relayhttp "github.com/relayhq/relay-go/http"
//
//	transport := relayhttp.NewTransport(relayhttp.Config{Token: token})
//	client, err := relay.New(relay.Config{Token: token, Transport: transport})
package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	relay "github.com/relayhq/relay-go"
)

const tracerName = "github.com/relayhq/relay-go/http"

// Config holds configuration for the HTTP transport.
type Config struct {
	// BaseURL is the Relay API endpoint. Defaults to relay.DefaultBaseURL.
	BaseURL string
	// Token is the service token, sent as a bearer credential.
	Token string
	// HTTPClient is optional; defaults to a client whose transport is
	// instrumented with otelhttp.
	HTTPClient *http.Client
}

// Transport implements relay.Transport over HTTP and SSE.
type Transport struct {
	cfg        Config
	httpClient *http.Client
	tracer     trace.Tracer
}

// NewTransport returns a transport for the given config.
func NewTransport(cfg Config) *Transport {
	if cfg.BaseURL == "" {
		cfg.BaseURL = relay.DefaultBaseURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &Transport{
		cfg:        cfg,
		httpClient: hc,
		tracer:     otel.Tracer(tracerName),
	}
}

// NewClient is a convenience constructor: it builds a Transport from
// cfg.Token and cfg.BaseURL and returns the fully wired relay client.
func NewClient(cfg relay.Config) (*relay.Client, error) {
	if cfg.Transport == nil {
		cfg.Transport = NewTransport(Config{BaseURL: cfg.BaseURL, Token: cfg.Token})
	}
	return relay.New(cfg)
}

// APIError is returned when the server responds with an HTTP error
// status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("relay: HTTP %d: %s", e.StatusCode, e.Message)
}

// -- wire types --------------------------------------------------------------

type flagsResponse struct {
	Flags map[string]relay.Flag `json:"flags"`
}

type evaluateRequest struct {
	Context map[string]any `json:"context"`
}

type realtimeResponse struct {
	URL string `json:"url"`
}

// -- helpers -----------------------------------------------------------------

func (t *Transport) do(ctx context.Context, method, rawURL string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("relay: marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("relay: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.cfg.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("relay: http: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	return resp, nil
}

// -- relay.Fetcher -----------------------------------------------------------

// FetchFlags retrieves the evaluated flag set. With a personalization
// context carrying attributes it posts the context to the evaluation
// endpoint; otherwise it issues a plain GET.
func (t *Transport) FetchFlags(ctx context.Context, pctx *relay.Context) (relay.Snapshot, error) {
	personalized := pctx != nil && len(pctx.Attributes) > 0

	ctx, span := t.tracer.Start(ctx, "relay.fetch_flags",
		trace.WithAttributes(attribute.Bool("relay.personalized", personalized)))
	defer span.End()

	var (
		resp *http.Response
		err  error
	)
	if personalized {
		resp, err = t.do(ctx, http.MethodPost, t.cfg.BaseURL+"/v1/evaluate", evaluateRequest{Context: pctx.Attributes})
	} else {
		resp, err = t.do(ctx, http.MethodGet, t.cfg.BaseURL+"/v1/flags", nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, err
	}
	defer resp.Body.Close()

	var out flagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		return nil, fmt.Errorf("relay: decode response: %w", err)
	}
	span.SetAttributes(attribute.Int("relay.flag_count", len(out.Flags)))
	return relay.Snapshot(out.Flags), nil
}

// -- relay.ChannelResolver ---------------------------------------------------

// ChannelAddress discovers the SSE endpoint for push updates.
func (t *Transport) ChannelAddress(ctx context.Context) (string, error) {
	resp, err := t.do(ctx, http.MethodGet, t.cfg.BaseURL+"/v1/realtime", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var out realtimeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("relay: decode response: %w", err)
	}
	return out.URL, nil
}

// -- relay.Streamer ----------------------------------------------------------

// OpenStream subscribes to the SSE channel scoped to the project and
// environment. The returned channel is closed when ctx is cancelled or
// the connection drops.
func (t *Transport) OpenStream(ctx context.Context, address, projectID, environmentKey string) (<-chan relay.ChannelEvent, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("relay: parse channel address: %w", err)
	}
	q := u.Query()
	q.Set("project", projectID)
	q.Set("environment", environmentKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("relay: create stream request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.cfg.Token)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("relay: stream connect: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	ch := make(chan relay.ChannelEvent, 16)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		// 1 MiB buffer so large flag payloads fit on one data line.
		br := bufio.NewReaderSize(resp.Body, 1<<20)
		parseSSE(ctx, br, ch)
	}()
	return ch, nil
}

// parseSSE reads SSE lines from r and sends channel events to ch. It
// implements the subset of the SSE spec the relay server emits: event
// and data fields, blank-line flush, multi-line data concatenation.
// "flags" events carry the raw key-to-flag mapping; anything else is a
// keep-alive.
func parseSSE(ctx context.Context, r *bufio.Reader, ch chan<- relay.ChannelEvent) {
	var (
		eventType string
		dataLines []string
	)

	for {
		if ctx.Err() != nil {
			return
		}
		line, err := r.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if len(dataLines) > 0 {
				ev := relay.ChannelEvent{}
				if eventType == "" || eventType == "flags" {
					data := strings.Join(dataLines, "\n")
					var flags map[string]relay.Flag
					if jsonErr := json.Unmarshal([]byte(data), &flags); jsonErr != nil {
						ev.Err = fmt.Errorf("relay: decode push event: %w", jsonErr)
					} else {
						ev.Flags = flags
					}
				}
				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
			}
			eventType = ""
			dataLines = nil
		} else if strings.HasPrefix(line, "event:") {
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		} else if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}

		if err != nil {
			return
		}
	}
}

// Compile-time interface checks.
var (
	_ relay.Fetcher         = (*Transport)(nil)
	_ relay.ChannelResolver = (*Transport)(nil)
	_ relay.Streamer        = (*Transport)(nil)
	_ relay.Transport       = (*Transport)(nil)
)
