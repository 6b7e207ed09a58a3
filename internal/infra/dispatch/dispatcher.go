// Package dispatch is the engine's only public call surface: it orchestrates
// validation, instance resolution and execution, and feeds the health
// tracker. A single tool's worst failure mode is a returned error, never a
// crash.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"tooldeck/internal/domain"
	"tooldeck/internal/infra/catalog"
	"tooldeck/internal/infra/health"
	"tooldeck/internal/infra/instance"
	"tooldeck/internal/infra/validate"
)

// Metrics receives per-call signals. Nil-safe via the noop default.
type Metrics interface {
	ObserveCall(tool string, err *domain.Error, duration time.Duration)
	CallStarted()
	CallFinished()
	SetUnhealthyTools(count int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveCall(string, *domain.Error, time.Duration) {}
func (noopMetrics) CallStarted()                                    {}
func (noopMetrics) CallFinished()                                   {}
func (noopMetrics) SetUnhealthyTools(int)                           {}

type Dispatcher struct {
	catalog *catalog.Store
	cache   *instance.Cache
	health  *health.Tracker
	runtime domain.RuntimeConfig
	metrics Metrics
	tracer  trace.Tracer
	logger  *zap.Logger

	serialMu sync.Mutex
	serial   map[string]*sync.Mutex
}

func NewDispatcher(
	cat *catalog.Store,
	cache *instance.Cache,
	tracker *health.Tracker,
	runtime domain.RuntimeConfig,
	metrics Metrics,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Dispatcher{
		catalog: cat,
		cache:   cache,
		health:  tracker,
		runtime: runtime,
		metrics: metrics,
		tracer:  otel.Tracer("tooldeck/dispatch"),
		logger:  logger.Named("dispatch"),
		serial:  make(map[string]*sync.Mutex),
	}
}

// Call runs one tool call end to end: lookup, validation, instance
// resolution, execution, classification. Cancellation on ctx propagates
// into the tool's Execute.
func (d *Dispatcher) Call(ctx context.Context, req domain.CallRequest) domain.CallResult {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	ctx, span := d.tracer.Start(ctx, "tooldeck.call",
		trace.WithAttributes(attribute.String("tool", req.Tool)))
	defer span.End()

	d.metrics.CallStarted()
	defer d.metrics.CallFinished()

	start := time.Now()
	result := d.call(ctx, req)
	result.Duration = time.Since(start)

	d.metrics.ObserveCall(req.Tool, result.Err, result.Duration)
	if result.Err != nil {
		span.SetStatus(codes.Error, string(result.Err.Kind))
		span.SetAttributes(attribute.String("error_kind", string(result.Err.Kind)))
		d.logger.Debug("call failed",
			zap.String("tool", req.Tool),
			zap.String("id", req.ID),
			zap.Error(result.Err),
		)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return result
}

func (d *Dispatcher) call(ctx context.Context, req domain.CallRequest) domain.CallResult {
	result := domain.CallResult{ID: req.ID, Tool: req.Tool}

	spec, ok := d.catalog.Lookup(req.Tool)
	if !ok {
		// Terminal, no health impact: the name was never registered.
		result.Err = domain.E(domain.ErrNotFound, "dispatch.call",
			fmt.Sprintf("tool %q is not in the catalog", req.Tool), nil).
			WithHint("list available tools to check the name")
		return result
	}

	if verr := validate.Args(spec.Params, req.Args); verr != nil {
		// Malformed calls are a caller bug, not a tool fault.
		result.Err = verr
		return result
	}

	inst, cerr := d.cache.GetOrCreate(ctx, req.Tool)
	if cerr != nil {
		result.Err = cerr
		d.syncUnhealthyGauge()
		return result
	}

	callCtx, cancel := context.WithTimeout(ctx, domain.CallTimeout(d.runtime, spec))
	defer cancel()

	value, execErr := d.execute(callCtx, spec, inst, req.Args)
	if execErr != nil {
		classified := domain.ClassifyExecution("dispatch.call", execErr)
		// Only structurally broken tools flip health; a flaky network blip
		// must not quarantine a tool.
		if classified.Class == domain.ClassPermanent {
			d.health.RecordFailure(req.Tool, classified)
			d.syncUnhealthyGauge()
		}
		result.Err = classified
		return result
	}

	result.Value = value
	// A permanent failure marks the tool unavailable without dropping its
	// cached instance, so execution is the only place a later success can
	// flip the record back.
	if hr, tracked := d.health.Status(req.Tool); tracked && !hr.Available {
		d.health.RecordSuccess(req.Tool)
		d.syncUnhealthyGauge()
	}
	return result
}

// execute invokes the instance, serializing when the tool declares itself
// unsafe for concurrent execution and converting panics into errors.
func (d *Dispatcher) execute(ctx context.Context, spec domain.ToolSpec, inst domain.ToolInstance, args map[string]any) (value any, err error) {
	if domain.SerializeExecution(spec, inst) {
		mu := d.serialLock(spec.Name)
		mu.Lock()
		defer mu.Unlock()
	}

	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("tool panicked",
				zap.String("tool", spec.Name), zap.Any("panic", p))
			err = domain.Permanent("dispatch.call", fmt.Errorf("tool panicked: %v", p))
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return inst.Execute(ctx, args)
}

func (d *Dispatcher) serialLock(name string) *sync.Mutex {
	d.serialMu.Lock()
	defer d.serialMu.Unlock()
	mu, ok := d.serial[name]
	if !ok {
		mu = &sync.Mutex{}
		d.serial[name] = mu
	}
	return mu
}

func (d *Dispatcher) syncUnhealthyGauge() {
	d.metrics.SetUnhealthyTools(len(d.health.AllUnhealthy()))
}

// CallBatch runs requests in input order and collects every result; one
// request's failure never aborts the batch.
func (d *Dispatcher) CallBatch(ctx context.Context, reqs []domain.CallRequest) []domain.CallResult {
	results := make([]domain.CallResult, 0, len(reqs))
	for _, req := range reqs {
		results = append(results, d.Call(ctx, req))
	}
	return results
}
