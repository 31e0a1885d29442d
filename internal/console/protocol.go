// Package console serves the evaluation API as request/response pairs, over
// JSON lines on a stream or over HTTP.
package console

import (
	"context"
	"errors"

	"github.com/google/uuid"

	ontology "github.com/mattbaird/ontology-sub000"
	"github.com/mattbaird/ontology-sub000/internal/logger"
	"github.com/mattbaird/ontology-sub000/pkg/drift"
	"github.com/mattbaird/ontology-sub000/pkg/eval"
	"github.com/mattbaird/ontology-sub000/pkg/statemachine"
	"github.com/mattbaird/ontology-sub000/pkg/types"
	"github.com/mattbaird/ontology-sub000/pkg/value"
)

// Op names a console operation
type Op string

const (
	OpEvaluate    Op = "evaluate"
	OpTransition  Op = "transition"
	OpUnify       Op = "unify"
	OpTransitions Op = "transitions"
	OpMatrix      Op = "matrix"
	OpDrift       Op = "drift"
	OpReload      Op = "reload"
)

// Ops lists every operation in the order help text shows them
var Ops = []Op{OpEvaluate, OpTransition, OpUnify, OpTransitions, OpMatrix, OpDrift, OpReload}

// Request is one console request. Which fields apply depends on Op.
type Request struct {
	ID      string       `json:"id,omitempty"`
	Op      Op           `json:"op"`
	Type    string       `json:"type,omitempty"`
	Expr    string       `json:"expr,omitempty"`
	Value   *value.Value `json:"value,omitempty"`
	A       string       `json:"a,omitempty"`
	B       string       `json:"b,omitempty"`
	Machine string       `json:"machine,omitempty"`
	State   string       `json:"state,omitempty"`
	Before  *value.Value `json:"before,omitempty"`
	After   *value.Value `json:"after,omitempty"`
	Paths   []string     `json:"paths,omitempty"`
}

// Response carries either a result or an error
type Response struct {
	ID     string     `json:"id"`
	Result any        `json:"result,omitempty"`
	Error  *ErrorBody `json:"error,omitempty"`
}

// ErrorKind classifies console errors
type ErrorKind string

const (
	ErrInvalidRequest ErrorKind = "invalid_request"
	ErrNotFound       ErrorKind = "not_found"
	ErrConflict       ErrorKind = "conflict"
	ErrLoad           ErrorKind = "load"
	ErrDrift          ErrorKind = "drift"
)

// ErrorBody describes a failed request
type ErrorBody struct {
	Kind     ErrorKind       `json:"kind"`
	Message  string          `json:"message"`
	Location *types.Location `json:"location,omitempty"`
	Details  []string        `json:"details,omitempty"`
}

// EvalResult is the result of evaluate and transition
type EvalResult struct {
	Accepted   bool             `json:"accepted"`
	Filled     value.Value      `json:"filled"`
	Violations []eval.Violation `json:"violations"`
}

// UnifyResult is the result of unify
type UnifyResult struct {
	Expr string `json:"expr"`
}

// TransitionsResult is the result of transitions
type TransitionsResult struct {
	Targets []string `json:"targets"`
}

// DriftResult is the result of drift
type DriftResult struct {
	Reports []drift.Report `json:"reports"`
}

// Engine is the API the console serves. *ontology.Service implements it.
type Engine interface {
	Validate(ctx context.Context, typeRef string, v value.Value) (ontology.Result, error)
	ValidateExpr(ctx context.Context, src string, v value.Value) (ontology.Result, error)
	ValidateTransition(ctx context.Context, machine string, before, after value.Value) (ontology.Result, error)
	Unify(ctx context.Context, a, b string) (types.Expr, error)
	Transitions(machine, state string) ([]string, error)
	Matrix(machine string) (ontology.Matrix, error)
	Drift(ctx context.Context, paths ...string) ([]drift.Report, error)
	Reload(ctx context.Context) (ontology.ReloadResult, error)
}

var _ Engine = (*ontology.Service)(nil)

// Handler dispatches requests to an Engine
type Handler struct {
	engine Engine
	log    logger.Logger
}

// NewHandler creates a handler
func NewHandler(engine Engine, log logger.Logger) *Handler {
	if log == nil {
		log = logger.Default()
	}
	return &Handler{engine: engine, log: log}
}

type requestError struct {
	kind ErrorKind
	msg  string
}

func (e *requestError) Error() string { return e.msg }

func invalid(msg string) error {
	return &requestError{kind: ErrInvalidRequest, msg: msg}
}

// Handle runs one request. Requests without an ID get a fresh UUID.
func (h *Handler) Handle(ctx context.Context, req Request) Response {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	log := h.log.WithFields(logger.F("id", req.ID), logger.F("op", string(req.Op)))

	result, err := h.dispatch(ctx, req)
	resp := Response{ID: req.ID, Result: result}
	if err != nil {
		resp.Error = errorBody(err)
		log.Debug("request failed", logger.F("kind", string(resp.Error.Kind)), logger.F("error", err))
		return resp
	}
	log.Debug("request handled")
	return resp
}

func orNull(v *value.Value) value.Value {
	if v == nil {
		return value.Null()
	}
	return *v
}

func (h *Handler) dispatch(ctx context.Context, req Request) (any, error) {
	switch req.Op {
	case OpEvaluate:
		var res ontology.Result
		var err error
		switch {
		case req.Type != "" && req.Expr != "":
			return nil, invalid("evaluate takes either 'type' or 'expr', not both")
		case req.Type != "":
			res, err = h.engine.Validate(ctx, req.Type, orNull(req.Value))
		case req.Expr != "":
			res, err = h.engine.ValidateExpr(ctx, req.Expr, orNull(req.Value))
		default:
			return nil, invalid("evaluate needs 'type' or 'expr'")
		}
		if err != nil {
			return nil, err
		}
		return evalResult(res), nil

	case OpTransition:
		if req.Machine == "" {
			return nil, invalid("transition needs 'machine'")
		}
		res, err := h.engine.ValidateTransition(ctx, req.Machine, orNull(req.Before), orNull(req.After))
		if err != nil {
			return nil, err
		}
		return evalResult(res), nil

	case OpUnify:
		if req.A == "" || req.B == "" {
			return nil, invalid("unify needs 'a' and 'b'")
		}
		e, err := h.engine.Unify(ctx, req.A, req.B)
		if err != nil {
			return nil, err
		}
		return UnifyResult{Expr: types.Canonical(e)}, nil

	case OpTransitions:
		if req.Machine == "" || req.State == "" {
			return nil, invalid("transitions needs 'machine' and 'state'")
		}
		targets, err := h.engine.Transitions(req.Machine, req.State)
		if err != nil {
			return nil, err
		}
		return TransitionsResult{Targets: targets}, nil

	case OpMatrix:
		if req.Machine == "" {
			return nil, invalid("matrix needs 'machine'")
		}
		m, err := h.engine.Matrix(req.Machine)
		if err != nil {
			return nil, err
		}
		return m, nil

	case OpDrift:
		if len(req.Paths) == 0 {
			return nil, invalid("drift needs 'paths' of the candidate packages")
		}
		reports, err := h.engine.Drift(ctx, req.Paths...)
		var de *ontology.DriftError
		if err != nil && !errors.As(err, &de) {
			return nil, err
		}
		return DriftResult{Reports: reports}, err

	case OpReload:
		return h.engine.Reload(ctx)

	case "":
		return nil, invalid("missing 'op'")
	}
	return nil, &requestError{kind: ErrNotFound, msg: "unknown op '" + string(req.Op) + "'"}
}

func evalResult(r ontology.Result) EvalResult {
	violations := r.Violations
	if violations == nil {
		violations = []eval.Violation{}
	}
	return EvalResult{Accepted: r.Accepted(), Filled: r.Filled, Violations: violations}
}

func errorBody(err error) *ErrorBody {
	body := &ErrorBody{Kind: ErrInvalidRequest, Message: err.Error()}

	var re *requestError
	var ce *ontology.ConflictError
	var de *ontology.DriftError
	switch {
	case errors.As(err, &re):
		body.Kind = re.kind
	case errors.As(err, &ce):
		body.Kind = ErrConflict
		loc := ce.Location
		body.Location = &loc
	case errors.As(err, &de):
		body.Kind = ErrDrift
		loc := de.Location()
		body.Location = &loc
		for _, r := range de.Reports {
			body.Details = append(body.Details, r.String())
		}
	case errors.Is(err, statemachine.ErrUnknownState):
		body.Kind = ErrNotFound
	default:
		if errs := ontology.LoadErrors(err); len(errs) > 0 {
			body.Kind = ErrLoad
			loc := errs[0].Location
			body.Location = &loc
			for _, e := range errs {
				body.Details = append(body.Details, e.Error())
			}
		}
	}
	if body.Location != nil && body.Location.IsZero() {
		body.Location = nil
	}
	return body
}
