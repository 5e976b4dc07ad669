package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mna-automation/dealcore/dealengine/config"
	"github.com/mna-automation/dealcore/dealengine/deal"
	"github.com/mna-automation/dealcore/dealengine/observability"
	"github.com/mna-automation/dealcore/eventbus"
)

var tracer = otel.Tracer("dealcore/gateway")

// ToolCall describes one mediated tool invocation.
type ToolCall struct {
	Tool   string         `json:"tool"`
	Stage  deal.StageID   `json:"stage,omitempty"`
	RunID  string         `json:"run_id,omitempty"`
	Params map[string]any `json:"params"`

	// IdempotencyKey dedups repeated calls: a second call with the same
	// key returns the cached result without re-invoking the tool.
	// Empty key disables deduplication for the call.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// Result is the outcome of a successful tool call.
type Result struct {
	Output       map[string]any `json:"output"`
	Attempts     int            `json:"attempts"`
	Duration     time.Duration  `json:"duration"`
	Deduplicated bool           `json:"deduplicated"`
}

// Gateway mediates tool calls: registry lookup, per-attempt timeout,
// exponential backoff on transient failures, idempotency dedup, and
// telemetry. All stage workers share one Gateway.
type Gateway struct {
	registry *Registry
	cfg      *config.EngineConfig
	log      deal.Logger
	bus      eventbus.Bus

	dedupMu sync.Mutex
	dedup   map[string]*Result
}

// NewGateway creates a Gateway over a registry.
func NewGateway(registry *Registry, cfg *config.EngineConfig, log deal.Logger, bus eventbus.Bus) *Gateway {
	if cfg == nil {
		cfg = config.DefaultEngineConfig()
	}
	if bus == nil {
		bus = eventbus.NopBus{}
	}
	return &Gateway{
		registry: registry,
		cfg:      cfg,
		log:      log,
		bus:      bus,
		dedup:    make(map[string]*Result),
	}
}

// Registry returns the underlying tool registry.
func (g *Gateway) Registry() *Registry { return g.registry }

// Invoke executes a tool call. Transient failures are retried with
// exponential backoff up to MaxToolRetries; permanent failures return
// immediately. An exhausted retry budget is returned as a
// PermanentToolError with Exhausted set.
func (g *Gateway) Invoke(ctx context.Context, call *ToolCall) (*Result, error) {
	def := g.registry.Get(call.Tool)
	if def == nil {
		return nil, &UnknownToolError{Tool: call.Tool}
	}

	if cached := g.lookupDedup(call.IdempotencyKey); cached != nil {
		g.log.Debug("tool call deduplicated", "tool", call.Tool, "idempotency_key", call.IdempotencyKey)
		g.publishCompleted(ctx, call, "deduplicated", cached.Attempts, 0, nil)
		return cached, nil
	}

	ctx, span := tracer.Start(ctx, "gateway.invoke")
	span.SetAttributes(
		attribute.String("tool.name", call.Tool),
		attribute.String("tool.stage", string(call.Stage)),
	)
	defer span.End()

	started := time.Now()
	attempts := 0

	operation := func() (map[string]any, error) {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, time.Duration(g.cfg.ToolTimeoutSeconds)*time.Second)
		defer cancel()

		output, err := def.Handler(attemptCtx, call.Params)
		if err == nil {
			return output, nil
		}

		class := ErrorClassTransient
		if def.Classify != nil {
			class = def.Classify(err)
		}
		if class == ErrorClassPermanent {
			return nil, backoff.Permanent(&PermanentToolError{Tool: call.Tool, Attempts: attempts, Cause: err})
		}

		g.log.Warn("tool call transient failure",
			"tool", call.Tool, "attempt", attempts, "error", err.Error())
		return nil, &TransientToolError{Tool: call.Tool, Attempt: attempts, Cause: err}
	}

	output, err := backoff.RetryWithData(operation, backoff.WithContext(g.retryPolicy(), ctx))
	duration := time.Since(started)

	if err != nil {
		var permanent *PermanentToolError
		if !errors.As(err, &permanent) {
			// Retry budget exhausted (or context done) on a transient error.
			cause := err
			var transient *TransientToolError
			if errors.As(err, &transient) {
				cause = transient.Cause
			}
			permanent = &PermanentToolError{Tool: call.Tool, Attempts: attempts, Exhausted: true, Cause: cause}
		}
		span.RecordError(permanent)
		g.log.Error("tool call failed",
			"tool", call.Tool, "attempts", attempts, "duration_ms", duration.Milliseconds(), "error", permanent.Error())
		observability.RecordToolCall(call.Tool, "error", int(duration.Milliseconds()))
		g.publishCompleted(ctx, call, "error", attempts, duration, permanent)
		return nil, permanent
	}

	result := &Result{Output: output, Attempts: attempts, Duration: duration}
	g.storeDedup(call.IdempotencyKey, result)

	g.log.Info("tool call completed",
		"tool", call.Tool, "attempts", attempts, "duration_ms", duration.Milliseconds())
	observability.RecordToolCall(call.Tool, "success", int(duration.Milliseconds()))
	g.publishCompleted(ctx, call, "success", attempts, duration, nil)
	return result, nil
}

func (g *Gateway) retryPolicy() backoff.BackOff {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = time.Duration(g.cfg.RetryInitialBackoffMs) * time.Millisecond
	expo.MaxInterval = time.Duration(g.cfg.RetryMaxBackoffMs) * time.Millisecond
	if g.cfg.RetryBackoffMultiplier > 1 {
		expo.Multiplier = g.cfg.RetryBackoffMultiplier
	}
	return backoff.WithMaxRetries(expo, uint64(g.cfg.MaxToolRetries))
}

func (g *Gateway) lookupDedup(key string) *Result {
	if key == "" || !g.cfg.EnableIdempotency {
		return nil
	}
	g.dedupMu.Lock()
	defer g.dedupMu.Unlock()

	cached := g.dedup[key]
	if cached == nil {
		return nil
	}
	return &Result{
		Output:       cached.Output,
		Attempts:     cached.Attempts,
		Duration:     cached.Duration,
		Deduplicated: true,
	}
}

func (g *Gateway) storeDedup(key string, result *Result) {
	if key == "" || !g.cfg.EnableIdempotency {
		return
	}
	g.dedupMu.Lock()
	defer g.dedupMu.Unlock()
	g.dedup[key] = result
}

func (g *Gateway) publishCompleted(ctx context.Context, call *ToolCall, status string, attempts int, duration time.Duration, err error) {
	event := &eventbus.ToolCallCompleted{
		RunID:      call.RunID,
		Tool:       call.Tool,
		Stage:      string(call.Stage),
		Status:     status,
		Attempts:   attempts,
		DurationMS: int(duration.Milliseconds()),
	}
	if err != nil {
		msg := err.Error()
		event.Error = &msg
	}
	_ = g.bus.Publish(ctx, event)
}
