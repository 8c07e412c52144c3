package example

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/psantana5/example/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Logger is the log sink the routines write to.
// logging.Logger satisfies it.
type Logger interface {
	Debug(message string, fields ...map[string]interface{})
	Info(message string, fields ...map[string]interface{})
}

// Registrar accepts hooks to run once at normal process termination.
// shutdown.Manager satisfies it.
type Registrar interface {
	Register(fn func(context.Context) error)
}

// Recorder receives the outcome of each summation and run
type Recorder interface {
	RecordSum(inputs, result int)
	ObserveRun(d time.Duration)
}

// Runner wires the example routines to their collaborators
type Runner struct {
	log     Logger
	hooks   Registrar
	metrics Recorder
	tracer  trace.Tracer
}

// Option configures optional Runner collaborators
type Option func(*Runner)

// WithRecorder reports sums and run durations to rec
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) {
		r.metrics = rec
	}
}

// WithTracer wraps the routines in spans created by tracer
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) {
		r.tracer = tracer
	}
}

// NewRunner creates a Runner that logs to log and registers its exit
// message with hooks
func NewRunner(log Logger, hooks Registrar, opts ...Option) *Runner {
	r := &Runner{
		log:    log,
		hooks:  hooks,
		tracer: noop.NewTracerProvider().Tracer("example"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Main logs the start of the program, runs DoSomething and registers the
// exit message. The exit message is only written when the registrar runs
// its hooks.
func (r *Runner) Main(ctx context.Context) {
	ctx, span := r.tracer.Start(ctx, "main")
	defer span.End()
	start := time.Now()

	r.log.Info("Starting")

	r.DoSomething(ctx)

	r.hooks.Register(func(context.Context) error {
		r.log.Info("Exiting!")
		return nil
	})
	tracing.AddEvent(ctx, "exit_hook_registered")

	if r.metrics != nil {
		r.metrics.ObserveRun(time.Since(start))
	}
}

// DoSomething sums a fixed set of inputs, logging before and after
func (r *Runner) DoSomething(ctx context.Context) {
	_, span := r.tracer.Start(ctx, "do_something")
	defer span.End()

	inputs := []int{1, 2}
	r.log.Debug(fmt.Sprintf("Doing something with %s", formatInts(inputs)))

	output := SumNumbers(inputs)
	span.SetAttributes(
		attribute.IntSlice("example.inputs", inputs),
		attribute.Int("example.output", output),
	)

	r.log.Info(fmt.Sprintf("Got %d", output))

	if r.metrics != nil {
		r.metrics.RecordSum(len(inputs), output)
	}
}

// SumNumbers returns the sum of nums, or 0 for an empty slice.
// Overflow wraps around following Go's int arithmetic.
func SumNumbers(nums []int) int {
	sum := 0
	for _, n := range nums {
		sum += n
	}
	return sum
}

// formatInts renders nums as "[1, 2]"
func formatInts(nums []int) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = strconv.Itoa(n)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
