// Package cxflatmap contains the merging flat-map operator.
//
// For each value from an upstream publisher, the operator subscribes to
// a derived publisher, and it merges the values of all derived publishers
// into a single downstream stream without exceeding downstream demand.
//
// At most [Config.MaxConcurrent] derived publishers are active at once.
// Each derived publisher is asked for one value at a time;
// a value that arrives while downstream has no demand
// waits in that child's single-slot buffer.
// Any failure, upstream or from a child, fails the whole operator:
// every child and the upstream are cancelled and buffered values are discarded.
package cxflatmap

import (
	"context"
	"log/slog"

	combinex "github.com/cx-org/CombineX-sub003"
	"github.com/cx-org/CombineX-sub003/cxdemand"
	"github.com/cx-org/CombineX-sub003/internal/cxtrace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/cx-org/CombineX-sub003/cxflatmap"

// Config is the configuration for [New].
type Config struct {
	// The maximum number of derived publishers active at once.
	// Use [cxdemand.Unlimited] for no bound.
	// None is invalid.
	MaxConcurrent cxdemand.Demand

	// Optional. Each subscription records one span
	// covering the whole operation.
	// When nil, tracing is disabled.
	TracerProvider oteltrace.TracerProvider
}

// Publisher is the flat-map publisher returned by [New].
type Publisher[In, Out any] struct {
	log    *slog.Logger
	tracer cxtrace.Tracer

	upstream  combinex.Publisher[In]
	max       cxdemand.Demand
	transform func(In) combinex.Publisher[Out]
}

// New returns a publisher that subscribes to upstream,
// passes each upstream value through transform,
// and merges the resulting publishers' values.
//
// New panics with [combinex.ContractViolationError]
// if cfg.MaxConcurrent is None.
func New[In, Out any](
	log *slog.Logger,
	upstream combinex.Publisher[In],
	cfg Config,
	transform func(In) combinex.Publisher[Out],
) *Publisher[In, Out] {
	if cfg.MaxConcurrent.IsZero() {
		panic(combinex.ContractViolationError{
			Op:     "cxflatmap.New",
			Reason: "MaxConcurrent must be positive",
		})
	}

	return &Publisher[In, Out]{
		log:       log,
		tracer:    cxtrace.TracerOrNop(cfg.TracerProvider, tracerName),
		upstream:  upstream,
		max:       cfg.MaxConcurrent,
		transform: transform,
	}
}

// Subscribe starts a new, independent flat-map operation for s.
func (p *Publisher[In, Out]) Subscribe(s combinex.Subscriber[Out]) {
	id := combinex.NewIdentifier()
	_, span := p.tracer.Start(
		context.Background(),
		"flat-map",
		cxtrace.WithAttributes(
			cxtrace.StringerAttr("op_id", id),
			cxtrace.StringerAttr("max_concurrent", p.max),
		),
	)
	o := &operator[In, Out]{
		id:         id,
		log:        p.log.With("op_id", id),
		span:       span,
		max:        p.max,
		transform:  p.transform,
		downstream: s,
	}
	p.upstream.Subscribe(o)
}
