// Package relay is the client SDK for the Relay feature flag service.
//
// A [Client] is constructed from a service token, fetches the evaluated
// flags for its project and environment, keeps them fresh over a push
// channel, and answers reads from an in-memory snapshot:
//
//	client, err := relay.New(relay.Config{Token: "rly_p1_prod_s3cret"})
//	if err != nil {
//		// malformed token
//	}
//	if err := client.WaitForInitialized(ctx); err != nil {
//		// first fetch failed
//	}
//	if client.IsEnabled("dark-mode") { ... }
//
// Flag evaluation happens server-side; the SDK only consumes already
// evaluated results.
package relay

import (
	"context"
	"encoding/json"
)

// FlagType discriminates the runtime shape of a flag value.
type FlagType string

const (
	FlagTypeBoolean FlagType = "boolean"
	FlagTypeString  FlagType = "string"
	FlagTypeNumber  FlagType = "number"
	FlagTypeJSON    FlagType = "json"
)

// Flag is a single evaluated feature flag.
type Flag struct {
	Key     string   `json:"key"`
	Enabled bool     `json:"enabled"`
	Value   any      `json:"value"`
	Type    FlagType `json:"type"`
}

// Snapshot is the complete current flag set, keyed by canonical key.
// It is replaced wholesale on every fetch or push apply, never patched.
type Snapshot map[string]Flag

// Context carries user or tenant attributes for server-side targeting.
// Values are scalars or string lists. A nil *Context means "no
// personalization"; that is distinct from an empty one only in intent —
// both produce an unpersonalized fetch.
type Context struct {
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Clone returns a deep-enough copy: the attribute map is copied, values
// are shared.
func (c *Context) Clone() *Context {
	if c == nil {
		return nil
	}
	attrs := make(map[string]any, len(c.Attributes))
	for k, v := range c.Attributes {
		attrs[k] = v
	}
	return &Context{Attributes: attrs}
}

// active reports whether personalization should affect push handling:
// a nil or attribute-less context is not active.
func (c *Context) active() bool {
	return c != nil && len(c.Attributes) > 0
}

// Status is the lifecycle state of a Client.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusReady        Status = "ready"
	StatusError        Status = "error"
)

// ChannelEvent is one message from the push channel. Exactly one of
// Flags and Err is meaningful; a nil Flags with a nil Err is a
// keep-alive and carries no data.
type ChannelEvent struct {
	Flags map[string]Flag
	Err   error
}

// Fetcher retrieves the evaluated flag set for the client's project and
// environment. A nil pctx requests unpersonalized results.
type Fetcher interface {
	FetchFlags(ctx context.Context, pctx *Context) (Snapshot, error)
}

// ChannelResolver discovers the push channel address. Implementations
// are best-effort; any error disables push updates for the client.
type ChannelResolver interface {
	ChannelAddress(ctx context.Context) (string, error)
}

// Streamer opens the push subscription for (projectID, environmentKey).
// The returned channel is closed when ctx is cancelled or the
// connection drops.
type Streamer interface {
	OpenStream(ctx context.Context, address, projectID, environmentKey string) (<-chan ChannelEvent, error)
}

// Transport bundles the remote collaborators a Client needs.
type Transport interface {
	Fetcher
	ChannelResolver
	Streamer
}

// Store is best-effort durable storage for the last-known snapshot.
// Load returns (nil, nil) when nothing is stored. Callers treat every
// failure as a cache miss.
type Store interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
}

// Listener is notified after every snapshot replacement. Listeners run
// synchronously on the mutating goroutine and must not subscribe or
// unsubscribe from within the callback.
type Listener func(Snapshot)

func encodeSnapshot(s Snapshot) ([]byte, error) {
	return json.Marshal(s)
}

func decodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return s, nil
}
