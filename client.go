package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relayhq/relay-go/internal/logging"
	"github.com/relayhq/relay-go/internal/metrics"
)

const bestEffortTimeout = 2 * time.Second

// Client is the flag resolution engine for one service token. Construct
// one per credential with [New]; all methods are safe for concurrent
// use.
type Client struct {
	cfg        Config
	creds      Credentials
	transport  Transport
	store      Store
	storageKey string
	log        *slog.Logger
	metrics    *metrics.Metrics

	mu        sync.RWMutex
	snapshot  Snapshot
	flat      map[string]any
	pctx      *Context
	status    Status
	lastErr   error
	closed    bool
	listeners map[uuid.UUID]Listener

	initOnce sync.Once
	initDone chan struct{}
	initErr  error

	cancel context.CancelFunc
}

// New validates the token synchronously, loads any persisted snapshot,
// and starts initialization in the background. Use WaitForInitialized to
// block until the first fetch settles; reads before that fall through
// to DefaultFlags (or the persisted snapshot, if one loaded).
func New(cfg Config) (*Client, error) {
	creds, err := ParseToken(cfg.Token)
	if err != nil {
		return nil, err
	}
	if cfg.Transport == nil {
		return nil, errors.New("relay: transport is required (see the http subpackage)")
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Nop()
	}

	c := &Client{
		cfg:        cfg,
		creds:      creds,
		transport:  cfg.Transport,
		store:      cfg.Store,
		storageKey: fmt.Sprintf("relay:%s:%s", creds.ProjectID, creds.EnvironmentKey),
		log:        log.With("project", creds.ProjectID, "environment", creds.EnvironmentKey),
		metrics:    metrics.New(),
		snapshot:   Snapshot{},
		flat:       map[string]any{},
		pctx:       cfg.Context.Clone(),
		status:     StatusInitializing,
		listeners:  make(map[uuid.UUID]Listener),
		initDone:   make(chan struct{}),
	}

	c.loadPersisted()

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.initialize(ctx)

	return c, nil
}

// -- lifecycle ---------------------------------------------------------------

func (c *Client) initialize(ctx context.Context) {
	if err := c.fetchAndReplace(ctx); err != nil {
		c.mu.Lock()
		if !c.closed {
			c.status = StatusError
			c.lastErr = err
		}
		c.mu.Unlock()
		c.log.Error("initial fetch failed", "error", err)
		c.settleInit(err)
		return
	}
	c.startStream(ctx)
	c.mu.Lock()
	if !c.closed {
		c.status = StatusReady
	}
	c.mu.Unlock()
	c.settleInit(nil)
}

func (c *Client) settleInit(err error) {
	c.initOnce.Do(func() {
		c.initErr = err
		close(c.initDone)
	})
}

// WaitForInitialized blocks until the first fetch has settled and
// returns its outcome: nil after success, the fetch error after
// failure. The outcome is fixed once; later fetches never change it.
func (c *Client) WaitForInitialized(ctx context.Context) error {
	select {
	case <-c.initDone:
		return c.initErr
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrNotInitialized, ctx.Err())
	}
}

// Close unsubscribes from the push channel and drops all listeners.
// In-flight fetches are not aborted, but their results are discarded:
// snapshot replacement is a no-op after Close.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.listeners = make(map[uuid.UUID]Listener)
	c.mu.Unlock()
	c.metrics.ActiveSubscriptions.Set(0)
	c.cancel()
	c.settleInit(ErrClosed)
	return nil
}

// Status reports the lifecycle state: initializing until the first
// fetch settles, then ready or error permanently.
func (c *Client) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// LastError returns the most recent fetch error, or nil. Errors from
// post-initialization fetches surface only here and in the log.
func (c *Client) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// MetricsHandler serves the SDK's Prometheus metrics.
func (c *Client) MetricsHandler() http.Handler {
	return c.metrics.Handler()
}

// -- push channel ------------------------------------------------------------

func (c *Client) startStream(ctx context.Context) {
	if c.cfg.DisableStreaming {
		return
	}
	addr, err := c.transport.ChannelAddress(ctx)
	if err != nil || addr == "" {
		c.log.Info("push channel unavailable, running fetch-only", "error", err)
		return
	}
	events, err := c.transport.OpenStream(ctx, addr, c.creds.ProjectID, c.creds.EnvironmentKey)
	if err != nil {
		c.log.Warn("push channel subscription failed, running fetch-only", "error", err)
		return
	}
	go c.consumeStream(ctx, events)
}

func (c *Client) consumeStream(ctx context.Context, events <-chan ChannelEvent) {
	for ev := range events {
		switch {
		case ev.Err != nil:
			c.metrics.RecordPushEvent(metrics.PushError)
			c.log.Warn("push channel error", "error", ev.Err)
		case ev.Flags == nil:
			c.metrics.RecordPushEvent(metrics.PushEmpty)
		default:
			c.handlePushEvent(ctx, ev.Flags)
		}
	}
	c.log.Debug("push channel closed")
}

// handlePushEvent applies one push event. With personalization active
// the pushed values come from the unpersonalized feed and serve only as
// a staleness signal: the client re-fetches through the evaluation
// endpoint instead of adopting them.
func (c *Client) handlePushEvent(ctx context.Context, raw map[string]Flag) {
	c.mu.RLock()
	personalized := c.pctx.active()
	c.mu.RUnlock()

	if personalized {
		c.metrics.RecordPushEvent(metrics.PushRefetched)
		if err := c.fetchAndReplace(ctx); err != nil {
			c.recordError(err)
			c.log.Warn("push-triggered refetch failed", "error", err)
		}
		return
	}
	c.metrics.RecordPushEvent(metrics.PushApplied)
	c.replaceSnapshot(validateSnapshot(raw, c.log))
}

// -- fetch / replace ---------------------------------------------------------

// fetchAndReplace performs one fetch with the current personalization
// context and swaps the snapshot. No retries; the error is the caller's
// to handle.
func (c *Client) fetchAndReplace(ctx context.Context) error {
	c.mu.RLock()
	pctx := c.pctx.Clone()
	c.mu.RUnlock()

	start := time.Now()
	snap, err := c.transport.FetchFlags(ctx, pctx)
	c.metrics.RecordFetch(start, err)
	if err != nil {
		return err
	}
	c.replaceSnapshot(validateSnapshot(snap, c.log))
	return nil
}

// replaceSnapshot atomically swaps the snapshot and its flat view,
// persists best-effort, and notifies every listener. Readers observe
// either the fully-old or fully-new snapshot, never a mix. No-op after
// Close.
func (c *Client) replaceSnapshot(next Snapshot) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.snapshot = next
	c.flat = flattenSnapshot(next)
	listeners := make([]Listener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	c.metrics.RecordSnapshot(len(next))
	c.persistSnapshot(next)

	view := copySnapshot(next)
	for _, fn := range listeners {
		fn(view)
	}
}

func (c *Client) loadPersisted() {
	if c.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), bestEffortTimeout)
	defer cancel()
	data, err := c.store.Load(ctx, c.storageKey)
	if err != nil || data == nil {
		if err != nil {
			c.log.Debug("persisted snapshot unavailable", "error", err)
		}
		return
	}
	snap, err := decodeSnapshot(data)
	if err != nil {
		c.log.Debug("persisted snapshot corrupt, ignoring", "error", err)
		return
	}
	snap = validateSnapshot(snap, c.log)
	c.mu.Lock()
	c.snapshot = snap
	c.flat = flattenSnapshot(snap)
	c.mu.Unlock()
}

func (c *Client) persistSnapshot(snap Snapshot) {
	if c.store == nil {
		return
	}
	data, err := encodeSnapshot(snap)
	if err != nil {
		c.metrics.PersistFailures.Inc()
		c.log.Debug("encode snapshot for persistence", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), bestEffortTimeout)
	defer cancel()
	if err := c.store.Save(ctx, c.storageKey, data); err != nil {
		c.metrics.PersistFailures.Inc()
		c.log.Debug("persist snapshot", "error", err)
	}
}

func (c *Client) recordError(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

// -- personalization ---------------------------------------------------------

// Identify replaces the personalization context and re-fetches. The
// error, if any, is returned and recorded in LastError; it never
// affects Status or the WaitForInitialized outcome. Concurrent Identify
// and Reset calls race over the network: whichever response lands last
// wins the snapshot.
func (c *Client) Identify(ctx context.Context, pctx *Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.pctx = pctx.Clone()
	c.mu.Unlock()

	if err := c.fetchAndReplace(ctx); err != nil {
		c.recordError(err)
		c.log.Warn("identify fetch failed", "error", err)
		return err
	}
	return nil
}

// Reset clears the personalization context and re-fetches
// unpersonalized flags.
func (c *Client) Reset(ctx context.Context) error {
	return c.Identify(ctx, nil)
}

// Refresh re-fetches with the current context. Callers own retry and
// backoff policy; the SDK never retries internally.
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if err := c.fetchAndReplace(ctx); err != nil {
		c.recordError(err)
		return err
	}
	return nil
}

// Context returns a copy of the current personalization context, or nil.
func (c *Client) Context() *Context {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pctx.Clone()
}

// -- read surface ------------------------------------------------------------

// Get resolves key (canonical or alternate form) and returns the flag's
// value if the flag exists and is enabled. Otherwise it returns the
// DefaultFlags entry for the resolved key, falling back to the lookup
// key when no canonical match exists; nil if the table has no entry
// either.
func (c *Client) Get(key string) any {
	c.mu.RLock()
	snap := c.snapshot
	c.mu.RUnlock()

	canonical, ok := resolveCanonicalKey(key, snap)
	if !ok {
		return c.cfg.DefaultFlags[key]
	}
	flag := snap[canonical]
	if flag.Enabled {
		return flag.Value
	}
	return c.cfg.DefaultFlags[canonical]
}

// IsEnabled reports whether the flag resolved from key is on. An
// enabled non-boolean flag counts as on regardless of its value; an
// enabled boolean flag reports its value. Missing or disabled flags
// report the DefaultFlags entry, which counts only when it is the
// boolean true.
func (c *Client) IsEnabled(key string) bool {
	c.mu.RLock()
	snap := c.snapshot
	c.mu.RUnlock()

	canonical, ok := resolveCanonicalKey(key, snap)
	if !ok {
		return boolDefault(c.cfg.DefaultFlags[key])
	}
	flag := snap[canonical]
	if !flag.Enabled {
		return boolDefault(c.cfg.DefaultFlags[canonical])
	}
	if flag.Type == FlagTypeBoolean {
		b, _ := flag.Value.(bool)
		return b
	}
	return true
}

// GetAll returns a defensive copy of the current snapshot.
func (c *Client) GetAll() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copySnapshot(c.snapshot)
}

// FlatValues returns the cached flat value view: enabled flag values by
// canonical key, plus alternate-form keys for keys containing
// separators. The same map reference is returned until the snapshot
// next changes, so consumers may skip work by comparing references.
// Treat it as read-only.
func (c *Client) FlatValues() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.flat
}

func boolDefault(v any) bool {
	b, ok := v.(bool)
	return ok && b
}

// -- subscriptions -----------------------------------------------------------

// Subscribe registers fn to run after every snapshot replacement and
// returns a function that removes it. Listeners are invoked
// synchronously in no particular order; subscribing or unsubscribing
// from inside a listener is undefined behaviour.
func (c *Client) Subscribe(fn Listener) (unsubscribe func()) {
	id := uuid.New()
	c.mu.Lock()
	c.listeners[id] = fn
	n := len(c.listeners)
	c.mu.Unlock()
	c.metrics.ActiveSubscriptions.Set(float64(n))

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		n := len(c.listeners)
		c.mu.Unlock()
		c.metrics.ActiveSubscriptions.Set(float64(n))
	}
}
