// Package airuntime is the developer-facing facade over the manifest-driven
// runtime: one Client wraps a manifeststore.Store, an orchestrator.Orchestrator,
// and the config/logging wiring a caller would otherwise have to assemble by
// hand. Grounded on the teacher's top-level Client (client.go) — functional
// constructor, AddSystemPrompt/SendMessage-style ergonomics — generalized
// from one hardcoded provider into a providerId-parameterized call.
package airuntime

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/aiproto/runtime/capcheck"
	"github.com/aiproto/runtime/internal/config"
	"github.com/aiproto/runtime/internal/transport"
	"github.com/aiproto/runtime/manifeststore"
	"github.com/aiproto/runtime/orchestrator"
	"github.com/aiproto/runtime/protocol"
	"github.com/aiproto/runtime/resilience"
)

// Client is the top-level entry point: Chat and CallService against any
// manifest known to the underlying store, with the resilience envelope and
// capability checks applied transparently. A streaming Chat is collected into
// a single UnifiedResponse; no per-event stream is exposed.
type Client struct {
	store   *manifeststore.Store
	orch    *orchestrator.Orchestrator
	logger  *slog.Logger
	watcher *manifeststore.Watcher
}

// Option configures a Client at construction time.
type Option func(*clientConfig)

type clientConfig struct {
	manifestDir      string
	logger           *slog.Logger
	resilience       config.Resilience
	capabilityPolicy *capcheck.Policy
	hotReload        bool
	transportOpts    []transport.Option
}

// WithManifestDir overrides the manifest root directory; defaults to
// config.ResolveManifestDir()'s probe when omitted.
func WithManifestDir(dir string) Option {
	return func(c *clientConfig) { c.manifestDir = dir }
}

// WithLogger overrides the structured logger used across the client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) { c.logger = logger }
}

// WithResilience overrides the default rate-limit/breaker/retry tuning.
func WithResilience(r config.Resilience) Option {
	return func(c *clientConfig) { c.resilience = r }
}

// WithStrictParallelToolChecks enables capcheck's strict parallel-tools
// enforcement (off by default).
func WithStrictParallelToolChecks() Option {
	return func(c *clientConfig) {
		policy := capcheck.Policy{StrictParallelTools: true}
		c.capabilityPolicy = &policy
	}
}

// WithHotReload starts a manifeststore.Watcher so edited manifests are
// picked up without restarting the process.
func WithHotReload() Option {
	return func(c *clientConfig) { c.hotReload = true }
}

// New builds a Client, resolving the manifest directory and resilience
// defaults the way config.Loader does when not explicitly overridden.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		resilience: config.DefaultResilience(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.manifestDir == "" {
		cfg.manifestDir = config.ResolveManifestDir()
	}

	store := manifeststore.New(cfg.manifestDir)

	orchOpts := []orchestrator.Option{
		orchestrator.WithLogger(cfg.logger),
		orchestrator.WithResilienceDefaults(cfg.resilience),
		orchestrator.WithRetryConfig(resilience.RetryConfig{
			MaxAttempts:  cfg.resilience.RetryMaxAttempts,
			BaseInterval: cfg.resilience.RetryBaseInterval,
			MaxInterval:  cfg.resilience.RetryMaxInterval,
		}),
		orchestrator.WithTransport(transport.New(append([]transport.Option{
			transport.WithRequestTimeout(cfg.resilience.RequestTimeout),
			transport.WithStreamIdleTimeout(cfg.resilience.StreamIdleTimeout),
		}, cfg.transportOpts...)...)),
	}
	if cfg.capabilityPolicy != nil {
		orchOpts = append(orchOpts, orchestrator.WithCapabilityPolicy(*cfg.capabilityPolicy))
	}

	orch := orchestrator.New(store, orchOpts...)

	client := &Client{store: store, orch: orch, logger: cfg.logger}

	if cfg.hotReload {
		watcher, err := manifeststore.NewWatcher(store, cfg.logger)
		if err != nil {
			return nil, err
		}
		if err := watcher.Start(); err != nil {
			return nil, err
		}
		client.watcher = watcher
	}

	return client, nil
}

// Close stops the hot-reload watcher, if one was started.
func (c *Client) Close() error {
	if c.watcher != nil {
		c.watcher.Stop()
	}
	return nil
}

// Chat invokes providerID with req, applying the full resilience envelope
// and, when chain is non-nil, falling back through chain's candidates on a
// fallbackable failure.
func (c *Client) Chat(ctx context.Context, providerID string, req *protocol.UnifiedRequest, chain *resilience.FallbackChain) (*protocol.UnifiedResponse, error) {
	return c.orch.Invoke(ctx, providerID, req, chain)
}

// CallService invokes a manifest-declared non-chat named endpoint.
func (c *Client) CallService(ctx context.Context, providerID, serviceName string) (json.RawMessage, error) {
	return c.orch.CallService(ctx, providerID, serviceName)
}

// ProviderIDs lists the provider IDs known to the underlying manifest store.
func (c *Client) ProviderIDs() ([]string, error) {
	return c.store.IDs()
}
