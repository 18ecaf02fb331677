// Package orchestrator implements the call-path step order from spec.md
// §4.7: capability validation, request compilation, rate-limiter
// admission, circuit-breaker admission, HTTP dispatch, response decoding
// (direct or streamed), failure classification, breaker/limiter feedback,
// and the retry/fallback decision. Grounded on the teacher's top-level
// client.go call path (validate -> build -> send -> parse), generalized
// into a manifest-driven, provider-agnostic loop.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aiproto/runtime/capcheck"
	"github.com/aiproto/runtime/compiler"
	"github.com/aiproto/runtime/errorclass"
	"github.com/aiproto/runtime/internal/config"
	"github.com/aiproto/runtime/internal/transport"
	"github.com/aiproto/runtime/manifeststore"
	"github.com/aiproto/runtime/protocol"
	"github.com/aiproto/runtime/resilience"
	"github.com/aiproto/runtime/streampipeline"
)

// providerState bundles the per-provider resilience envelope the
// Orchestrator keeps alive across calls, so rate-limiter and breaker state
// persist between invocations instead of resetting every call.
type providerState struct {
	limiter *resilience.RateLimiter
	breaker *resilience.Breaker
	mapping *compiler.MappingTree
}

// Orchestrator drives UnifiedRequests through the full pipeline against a
// manifeststore.Store, with a persistent rate limiter and circuit breaker
// per provider.
type Orchestrator struct {
	store     *manifeststore.Store
	transport *transport.Client
	logger    *slog.Logger
	policy    capcheck.Policy
	retryCfg  resilience.RetryConfig
	defaults  config.Resilience

	mu    sync.Mutex
	state map[string]*providerState
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger overrides the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithCapabilityPolicy overrides the capcheck.Policy used for every call.
func WithCapabilityPolicy(policy capcheck.Policy) Option {
	return func(o *Orchestrator) { o.policy = policy }
}

// WithRetryConfig overrides the default retry policy.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(o *Orchestrator) { o.retryCfg = cfg }
}

// WithTransport overrides the transport.Client used for HTTP dispatch.
func WithTransport(t *transport.Client) Option {
	return func(o *Orchestrator) { o.transport = t }
}

// WithResilienceDefaults overrides the rate-limit/breaker defaults applied
// to providers on first use.
func WithResilienceDefaults(r config.Resilience) Option {
	return func(o *Orchestrator) { o.defaults = r }
}

// New builds an Orchestrator over store.
func New(store *manifeststore.Store, opts ...Option) *Orchestrator {
	defaults := config.DefaultResilience()
	o := &Orchestrator{
		store:     store,
		transport: transport.New(),
		logger:    slog.Default(),
		policy:    capcheck.DefaultPolicy(),
		retryCfg:  resilience.RetryConfig{MaxAttempts: defaults.RetryMaxAttempts, BaseInterval: defaults.RetryBaseInterval, MaxInterval: defaults.RetryMaxInterval},
		defaults:  defaults,
		state:     make(map[string]*providerState),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) providerState(manifest *protocol.Manifest) *providerState {
	o.mu.Lock()
	defer o.mu.Unlock()

	st, ok := o.state[manifest.ID]
	if ok {
		return st
	}
	rps := o.defaults.RateLimitRPS
	if rps == 0 {
		rps = 5
	}
	burst := o.defaults.RateLimitBurst
	if burst == 0 {
		burst = 10
	}
	failThresh := o.defaults.BreakerFailureThresh
	if failThresh == 0 {
		failThresh = 5
	}
	openTimeout := o.defaults.BreakerOpenTimeout
	probes := o.defaults.BreakerHalfOpenProbes
	if probes == 0 {
		probes = 2
	}

	st = &providerState{
		limiter: resilience.NewRateLimiter(rps, burst),
		breaker: resilience.NewBreaker(resilience.BreakerConfig{
			Name:             manifest.ID,
			FailureThreshold: uint32(failThresh),
			OpenTimeout:      openTimeout,
			HalfOpenProbes:   uint32(probes),
		}),
		mapping: compiler.CompileMapping(manifest.ParameterMaps),
	}
	o.state[manifest.ID] = st
	return st
}

// MultiProviderError is returned when the primary call and every fallback
// candidate failed, collecting each attempt's classified error for
// diagnostics.
type MultiProviderError struct {
	Attempts []AttemptError
}

// AttemptError records one failed candidate in a fallback chain.
type AttemptError struct {
	ProviderID string
	Model      string
	Err        *errorclass.ClassifiedError
}

func (e *MultiProviderError) Error() string {
	if len(e.Attempts) == 0 {
		return "orchestrator: no attempts were made"
	}
	msg := fmt.Sprintf("orchestrator: all %d candidate(s) failed", len(e.Attempts))
	for _, a := range e.Attempts {
		msg += fmt.Sprintf("; %s/%s: %v", a.ProviderID, a.Model, a.Err)
	}
	return msg
}

// Invoke runs req against providerID, retrying per the resilience envelope
// and, when chain is non-nil and the failure is Fallbackable, advancing
// through chain's candidates in order. The message list and other request
// content are preserved verbatim across fallback candidates, per spec.md
// §4.6; only providerID/model change.
func (o *Orchestrator) Invoke(ctx context.Context, providerID string, req *protocol.UnifiedRequest, chain *resilience.FallbackChain) (*protocol.UnifiedResponse, error) {
	candidates := []resilience.Candidate{{ProviderID: providerID, Model: req.Model}}
	for i := 0; i < chain.Len(); i++ {
		c, _ := chain.Next(i)
		candidates = append(candidates, c)
	}

	var attempts []AttemptError
	for _, candidate := range candidates {
		callReq := req.Clone()
		callReq.Model = candidate.Model

		response, classified := o.invokeOne(ctx, candidate.ProviderID, &callReq)
		if classified == nil {
			return response, nil
		}
		attempts = append(attempts, AttemptError{ProviderID: candidate.ProviderID, Model: candidate.Model, Err: classified})

		if !classified.Fallbackable() {
			return nil, &MultiProviderError{Attempts: attempts}
		}
	}
	return nil, &MultiProviderError{Attempts: attempts}
}

// invokeOne runs the full single-provider pipeline with retries, without
// fallback.
func (o *Orchestrator) invokeOne(ctx context.Context, providerID string, req *protocol.UnifiedRequest) (*protocol.UnifiedResponse, *errorclass.ClassifiedError) {
	manifest, err := o.store.Load(providerID)
	if err != nil {
		return nil, &errorclass.ClassifiedError{Code: errorclass.NotFound, Provider: providerID, Message: err.Error()}
	}

	if classified := capcheck.Resolve(manifest, req, o.policy); classified != nil {
		ce, _ := classified.(*errorclass.ClassifiedError)
		return nil, ce
	}

	state := o.providerState(manifest)

	result, classified := resilience.Attempt(ctx, o.retryCfg, func() (interface{}, *errorclass.ClassifiedError, time.Duration) {
		return o.dispatch(ctx, manifest, req, state)
	})
	if classified != nil {
		return nil, classified
	}
	return result.(*protocol.UnifiedResponse), nil
}

// dispatch runs one attempt against manifest: request compilation,
// rate-limiter admission, breaker admission, HTTP send, response
// decode/streaming, and failure classification. It returns a retry-after
// hint (third return value) when the provider's response carried one, for
// resilience.Attempt to weigh against the computed backoff delay.
func (o *Orchestrator) dispatch(ctx context.Context, manifest *protocol.Manifest, req *protocol.UnifiedRequest, state *providerState) (result interface{}, classified *errorclass.ClassifiedError, retryAfterHint time.Duration) {
	compiled, err := compiler.Compile(manifest, req, state.mapping)
	if err != nil {
		ce, _ := err.(*errorclass.ClassifiedError)
		classified = ce
		return nil, classified, 0
	}

	if err := state.limiter.Acquire(ctx); err != nil {
		return nil, &errorclass.ClassifiedError{Code: errorclass.Cancelled, Provider: manifest.ID, Message: err.Error(), Cause: err}, 0
	}

	done, err := state.breaker.Allow()
	if err != nil {
		return nil, &errorclass.ClassifiedError{Code: errorclass.Overloaded, Provider: manifest.ID, Message: "circuit breaker open, refusing call"}, 0
	}
	defer func() { done(resilience.ObserveClassified(classified)) }()

	httpResp, err := o.transport.Do(ctx, compiled, req.Stream)
	if err != nil {
		classified = &errorclass.ClassifiedError{Code: errorclass.ServerError, Provider: manifest.ID, Message: err.Error(), Cause: err}
		return nil, classified, 0
	}

	state.limiter.ObserveHeaders(
		httpResp.Header.Get("x-ratelimit-remaining-requests"),
		httpResp.Header.Get("x-ratelimit-reset-requests"),
		httpResp.Header.Get("retry-after"),
	)

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		if httpResp.Streaming {
			httpResp.Stream.Close()
		}
		bodyCode, errMsg := extractErrorBody(httpResp.Body)
		classified = errorclass.New(manifest.ErrorMap, bodyCode, httpResp.StatusCode, manifest.ID, errMsg, nil)
		return nil, classified, parseRetryAfter(httpResp.Header.Get("retry-after"))
	}

	if req.Stream {
		defer httpResp.Stream.Close()
		rules := streampipeline.CompileRules(manifest.Streaming.EventMap)
		format := streampipeline.DecoderFormat(manifest.Streaming.Decoder.Format)

		var events []protocol.StreamingEvent
		for event, streamErr := range streampipeline.Run(httpResp.Stream, format, rules, o.logger) {
			if streamErr != nil {
				classified = &errorclass.ClassifiedError{Code: errorclass.ServerError, Provider: manifest.ID, Message: streamErr.Error(), Cause: streamErr}
				return nil, classified, 0
			}
			events = append(events, event)
		}
		return streampipeline.Collect(events), nil, 0
	}

	return decodeResponse(manifest, httpResp.Body), nil, 0
}

// CallService invokes a manifest-declared non-chat named endpoint (e.g.
// "list_models", "get_balance", "get_usage"), reusing the same
// compile/auth/classify machinery as a chat call but skipping parameter
// mapping entirely, per spec.md §4.8. Unknown service names classify as
// not_found.
func (o *Orchestrator) CallService(ctx context.Context, providerID, serviceName string) (json.RawMessage, error) {
	manifest, err := o.store.Load(providerID)
	if err != nil {
		return nil, &errorclass.ClassifiedError{Code: errorclass.NotFound, Provider: providerID, Message: err.Error()}
	}
	if _, ok := manifest.Endpoint.Paths[serviceName]; !ok {
		return nil, &errorclass.ClassifiedError{Code: errorclass.NotFound, Provider: providerID, Message: fmt.Sprintf("service %q is not declared in endpoint.paths", serviceName)}
	}

	state := o.providerState(manifest)

	result, classified := resilience.Attempt(ctx, o.retryCfg, func() (interface{}, *errorclass.ClassifiedError, time.Duration) {
		compiled, err := compiler.CompileService(manifest, serviceName)
		if err != nil {
			ce, _ := err.(*errorclass.ClassifiedError)
			return nil, ce, 0
		}

		if err := state.limiter.Acquire(ctx); err != nil {
			return nil, &errorclass.ClassifiedError{Code: errorclass.Cancelled, Provider: manifest.ID, Message: err.Error(), Cause: err}, 0
		}
		done, err := state.breaker.Allow()
		if err != nil {
			return nil, &errorclass.ClassifiedError{Code: errorclass.Overloaded, Provider: manifest.ID, Message: "circuit breaker open, refusing call"}, 0
		}
		var outcome *errorclass.ClassifiedError
		defer func() { done(resilience.ObserveClassified(outcome)) }()

		httpResp, err := o.transport.Do(ctx, compiled, false)
		if err != nil {
			outcome = &errorclass.ClassifiedError{Code: errorclass.ServerError, Provider: manifest.ID, Message: err.Error(), Cause: err}
			return nil, outcome, 0
		}
		state.limiter.ObserveHeaders(
			httpResp.Header.Get("x-ratelimit-remaining-requests"),
			httpResp.Header.Get("x-ratelimit-reset-requests"),
			httpResp.Header.Get("retry-after"),
		)
		if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
			bodyCode, errMsg := extractErrorBody(httpResp.Body)
			outcome = errorclass.New(manifest.ErrorMap, bodyCode, httpResp.StatusCode, manifest.ID, errMsg, nil)
			return nil, outcome, parseRetryAfter(httpResp.Header.Get("retry-after"))
		}
		return json.RawMessage(httpResp.Body), nil, 0
	})
	if classified != nil {
		return nil, classified
	}
	return result.(json.RawMessage), nil
}
