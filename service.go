package ontology

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mattbaird/ontology-sub000/internal/logger"
	"github.com/mattbaird/ontology-sub000/internal/metrics"
	"github.com/mattbaird/ontology-sub000/pkg/drift"
	"github.com/mattbaird/ontology-sub000/pkg/eval"
	"github.com/mattbaird/ontology-sub000/pkg/resolver"
	"github.com/mattbaird/ontology-sub000/pkg/types"
	"github.com/mattbaird/ontology-sub000/pkg/value"
)

const tracerName = "github.com/mattbaird/ontology-sub000"

// Service keeps an active graph for long-running callers. Calls take the
// graph that was active when they started; Reload builds a replacement and
// swaps it in without blocking them.
type Service struct {
	paths    []string
	loader   *resolver.Loader
	graph    atomic.Pointer[Graph]
	reloadMu sync.Mutex

	log      logger.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	deadline time.Duration
	debounce time.Duration

	onReload []func(ReloadResult)
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithLogger sets the service logger
func WithLogger(l logger.Logger) ServiceOption {
	return func(s *Service) { s.log = l }
}

// WithMetrics records evaluations and reloads on m
func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithDeadline bounds every evaluation that arrives without its own deadline
func WithDeadline(d time.Duration) ServiceOption {
	return func(s *Service) { s.deadline = d }
}

// WithDebounce sets how long Watch waits for file events to settle
func WithDebounce(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// WithLoader replaces the default document loader
func WithLoader(l *resolver.Loader) ServiceOption {
	return func(s *Service) { s.loader = l }
}

// OnReload registers fn to run after every successful reload
func OnReload(fn func(ReloadResult)) ServiceOption {
	return func(s *Service) { s.onReload = append(s.onReload, fn) }
}

// NewService loads paths and returns a service serving the result
func NewService(ctx context.Context, paths []string, opts ...ServiceOption) (*Service, error) {
	s := &Service{
		paths:    append([]string(nil), paths...),
		log:      logger.Default(),
		metrics:  metrics.New(),
		tracer:   otel.Tracer(tracerName),
		debounce: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.loader == nil {
		s.loader = resolver.NewLoader()
	}

	start := time.Now()
	g, err := s.loader.Load(ctx, s.paths...)
	s.metrics.ObserveReload(start, err)
	if err != nil {
		return nil, err
	}
	s.activate(g)
	s.log.Info("packages loaded", logger.F("packages", len(g.Packages())), logger.F("definitions", len(g.Definitions())), logger.F("digest", g.Digest()))
	return s, nil
}

func (s *Service) activate(g *Graph) {
	s.graph.Store(g)
	s.metrics.Definitions.Set(float64(len(g.Definitions())))
}

// Graph returns the active graph
func (s *Service) Graph() *Graph {
	return s.graph.Load()
}

// Metrics returns the metrics the service records on
func (s *Service) Metrics() *metrics.Metrics {
	return s.metrics
}

// Paths returns the paths the service loads from
func (s *Service) Paths() []string {
	return append([]string(nil), s.paths...)
}

// ReloadResult describes a successful reload
type ReloadResult struct {
	Digest   string         `json:"digest"`
	Changed  bool           `json:"changed"`
	Drift    []drift.Report `json:"drift,omitempty"`
	Duration time.Duration  `json:"duration"`
}

// Narrowed returns the drift reports that narrowed a reference
func (r ReloadResult) Narrowed() []drift.Report {
	return drift.Incompatible(r.Drift)
}

// Reload rebuilds the graph from the service paths. On failure the active
// graph stays in place and the load errors are returned. Reloads are
// serialized.
func (s *Service) Reload(ctx context.Context) (ReloadResult, error) {
	ctx, span := s.tracer.Start(ctx, "ontology.reload")
	defer span.End()

	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	start := time.Now()
	g, err := s.loader.Load(ctx, s.paths...)
	s.metrics.ObserveReload(start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reload failed")
		s.log.Warn("reload failed, keeping previous graph", logger.F("errors", len(LoadErrors(err))), logger.F("error", err))
		return ReloadResult{}, err
	}

	old := s.graph.Load()
	res := ReloadResult{Digest: g.Digest().String(), Changed: old.Digest() != g.Digest()}
	if res.Changed {
		res.Drift = drift.Check(old, g)
	}
	s.activate(g)
	res.Duration = time.Since(start)

	narrowed := res.Narrowed()
	s.metrics.NarrowedReferences.Set(float64(len(narrowed)))
	span.SetAttributes(
		attribute.Bool("ontology.changed", res.Changed),
		attribute.Int("ontology.narrowed", len(narrowed)),
	)
	s.log.Info("graph reloaded", logger.F("changed", res.Changed), logger.F("digest", res.Digest), logger.F("duration", res.Duration))
	for _, r := range narrowed {
		s.log.Warn("reference narrowed", logger.F("report", r.String()))
	}
	for _, fn := range s.onReload {
		fn(res)
	}
	return res, nil
}

func (s *Service) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || s.deadline <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.deadline)
}

func (s *Service) evaluate(ctx context.Context, op string, g *Graph, expr types.Expr, v value.Value) Result {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "ontology."+op)
	defer span.End()

	start := time.Now()
	res := eval.New(g).Validate(ctx, expr, v)
	s.record(span, op, start, res)
	return res
}

func (s *Service) record(span trace.Span, op string, start time.Time, res Result) {
	counts := make(map[string]int)
	for sev, n := range res.Count() {
		counts[string(sev)] = n
	}
	s.metrics.ObserveEvaluation(op, start, res.Accepted(), counts)
	span.SetAttributes(
		attribute.Bool("ontology.accepted", res.Accepted()),
		attribute.Int("ontology.violations", len(res.Violations)),
	)
	if res.HasSeverity(eval.SeverityTimeout) {
		span.SetStatus(codes.Error, "deadline exceeded")
	}
}

// Validate checks v against a definition of the active graph
func (s *Service) Validate(ctx context.Context, typeRef string, v value.Value) (Result, error) {
	g := s.Graph()
	ref, err := g.Ref(typeRef)
	if err != nil {
		return Result{}, err
	}
	return s.evaluate(ctx, "evaluate", g, ref, v), nil
}

// ValidateExpr checks v against an inline expression
func (s *Service) ValidateExpr(ctx context.Context, src string, v value.Value) (Result, error) {
	g := s.Graph()
	expr, err := ParseExpr(g, src)
	if err != nil {
		return Result{}, err
	}
	return s.evaluate(ctx, "evaluate_expr", g, expr, v), nil
}

// ValidateTransition validates an entity update against a machine
func (s *Service) ValidateTransition(ctx context.Context, machine string, before, after value.Value) (Result, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "ontology.transition")
	defer span.End()

	start := time.Now()
	res, err := ValidateTransition(ctx, s.Graph(), machine, before, after)
	if err != nil {
		return Result{}, err
	}
	s.record(span, "transition", start, res)
	return res, nil
}

// Unify composes two definitions of the active graph
func (s *Service) Unify(ctx context.Context, a, b string) (types.Expr, error) {
	_, span := s.tracer.Start(ctx, "ontology.unify")
	defer span.End()

	e, err := Unify(s.Graph(), a, b)
	if err != nil {
		span.RecordError(err)
		var ce *ConflictError
		if errors.As(err, &ce) {
			span.SetStatus(codes.Error, "conflict")
		}
	}
	return e, err
}

// Transitions lists the targets of state in a machine of the active graph
func (s *Service) Transitions(machine, state string) ([]string, error) {
	return Transitions(s.Graph(), machine, state)
}

// Matrix enumerates a machine of the active graph
func (s *Service) Matrix(machine string) (Matrix, error) {
	return EnumerateTransitionMatrix(s.Graph(), machine)
}

// Drift compares the active graph's dependents against a candidate set of
// packages without activating it
func (s *Service) Drift(ctx context.Context, paths ...string) ([]drift.Report, error) {
	_, span := s.tracer.Start(ctx, "ontology.drift")
	defer span.End()

	next, err := s.loader.Load(ctx, paths...)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate packages: %w", err)
	}
	return CheckDrift(s.Graph(), next)
}
