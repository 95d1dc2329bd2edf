// Package service routes tool calls to their handlers. Arguments are bound
// against the static catalog before a handler runs, so handlers only ever
// see validated, typed values.
package service

import (
	"context"
	stdErrors "errors"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"hybrid-filesystem/internal/catalog"
	"hybrid-filesystem/internal/errors"
	"hybrid-filesystem/internal/metrics"
	"hybrid-filesystem/internal/models"
)

const tracerName = "hybrid-filesystem/service"

// Handler executes one tool.
type Handler interface {
	Handle(ctx context.Context, args catalog.Args) (models.ToolResult, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, args catalog.Args) (models.ToolResult, error)

func (f HandlerFunc) Handle(ctx context.Context, args catalog.Args) (models.ToolResult, error) {
	return f(ctx, args)
}

// Dispatcher owns the tool registry. Registration happens once at startup;
// after that the registry is read-only and Call is safe for concurrent use.
type Dispatcher struct {
	catalog  *catalog.Catalog
	handlers map[string]Handler
	logger   zerolog.Logger
	metrics  *metrics.Recorder
	tracer   trace.Tracer
	sem      *semaphore.Weighted
	timeout  time.Duration
	timeouts map[string]time.Duration
}

type Option func(*Dispatcher)

func WithLogger(logger zerolog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

func WithMetrics(r *metrics.Recorder) Option {
	return func(d *Dispatcher) { d.metrics = r }
}

// WithMaxConcurrent bounds the number of handlers running at once. Callers
// beyond the limit wait until a slot frees up or their context ends.
func WithMaxConcurrent(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithOperationTimeout sets the deadline applied to every call.
func WithOperationTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// WithToolTimeout overrides the operation timeout for one tool.
func WithToolTimeout(name string, timeout time.Duration) Option {
	return func(d *Dispatcher) { d.timeouts[name] = timeout }
}

func NewDispatcher(cat *catalog.Catalog, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		catalog:  cat,
		handlers: make(map[string]Handler),
		logger:   zerolog.Nop(),
		tracer:   otel.Tracer(tracerName),
		timeouts: make(map[string]time.Duration),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register binds h to a catalog tool. Names outside the catalog and double
// registrations are programming errors.
func (d *Dispatcher) Register(name string, h Handler) error {
	if _, ok := d.catalog.Lookup(name); !ok {
		return fmt.Errorf("tool %q is not in the catalog", name)
	}
	if _, dup := d.handlers[name]; dup {
		return fmt.Errorf("tool %q registered twice", name)
	}
	d.handlers[name] = h
	return nil
}

// Unregistered lists catalog tools that have no handler.
func (d *Dispatcher) Unregistered() []string {
	var out []string
	for _, name := range d.catalog.Names() {
		if _, ok := d.handlers[name]; !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (d *Dispatcher) Catalog() *catalog.Catalog { return d.catalog }

// Metrics returns the recorder, or nil when metrics are disabled.
func (d *Dispatcher) Metrics() *metrics.Recorder { return d.metrics }

// Call binds raw against the catalog and runs the tool. Every failure is an
// *errors.Error; context errors and panics are converted.
func (d *Dispatcher) Call(ctx context.Context, name string, raw map[string]interface{}) (result models.ToolResult, err error) {
	start := time.Now()
	ctx, span := d.tracer.Start(ctx, "tool/"+name,
		trace.WithAttributes(attribute.String("tool.name", name)))

	h, known := d.handlers[name]
	defer func() {
		elapsed := time.Since(start)
		label := name
		if !known {
			label = "unknown"
		}
		if d.metrics != nil {
			d.metrics.ObserveCall(label, elapsed, err)
		}
		if err != nil {
			kind := errors.KindOf(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, string(kind))
			ev := d.logger.Warn()
			if kind == errors.KindInternal {
				ev = d.logger.Error()
			}
			ev.Str("tool", label).Str("kind", string(kind)).Dur("duration", elapsed).Err(err).Msg("tool call failed")
		} else {
			d.logger.Debug().Str("tool", name).Dur("duration", elapsed).Msg("tool call completed")
		}
		span.End()
	}()

	if !known {
		return models.ToolResult{}, errors.UnknownTool(name)
	}
	args, err := d.catalog.Bind(name, raw)
	if err != nil {
		return models.ToolResult{}, err
	}

	if d.sem != nil {
		if err := d.sem.Acquire(ctx, 1); err != nil {
			return models.ToolResult{}, contextError(err)
		}
		defer d.sem.Release(1)
	}

	timeout := d.timeout
	if t, ok := d.timeouts[name]; ok {
		timeout = t
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err = d.invoke(ctx, h, args)
	if err != nil {
		return models.ToolResult{}, contextError(err)
	}
	return result, nil
}

func (d *Dispatcher) invoke(ctx context.Context, h Handler, args catalog.Args) (result models.ToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Str("tool", args.Tool()).Interface("panic", r).
				Bytes("stack", debug.Stack()).Msg("tool handler panicked")
			err = errors.Internal(fmt.Errorf("panic: %v", r))
		}
	}()
	return h.Handle(ctx, args)
}

// contextError gives deadline and cancellation errors a kind and turns any
// other untyped error into an internal one.
func contextError(err error) error {
	var typed *errors.Error
	switch {
	case stdErrors.As(err, &typed):
		return err
	case stdErrors.Is(err, context.DeadlineExceeded):
		return errors.Wrap(errors.KindIOFailure, err, "Operation timed out")
	case stdErrors.Is(err, context.Canceled):
		return errors.Wrap(errors.KindIOFailure, err, "Operation cancelled")
	default:
		return errors.Internal(err)
	}
}
