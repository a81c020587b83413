// =============================================================================
// Package quick — One-Line Engine Construction
// =============================================================================
// Provides a convenience entry point for wiring a complete in-process
// execution engine with minimal boilerplate: task registry, liveness
// channel, dispatch coordinator, signal hub and pipeline orchestrator.
//
// Usage:
//
//	import "github.com/BaSui01/taskflow/quick"
//
//	eng, err := quick.New(quick.WithAdapters(fulfillment.Register))
//	eng, err := quick.New(quick.WithRedisLiveness(cfg), quick.WithLogger(logger))
//
// =============================================================================
package quick

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/taskflow/coordinator"
	"github.com/BaSui01/taskflow/liveness"
	"github.com/BaSui01/taskflow/pipeline"
	"github.com/BaSui01/taskflow/task"
)

// Engine bundles the components of a single-process deployment. All parts
// share one liveness channel, so checkpoints survive adapter restarts
// within the process and, with a Redis channel, across processes too.
type Engine struct {
	Registry     *task.Registry
	Channel      liveness.Channel
	Coordinator  *coordinator.Coordinator
	Signals      *coordinator.SignalHub
	Orchestrator *pipeline.Orchestrator
	Store        pipeline.InstanceStore
}

// Option configures the engine created by New.
type Option func(*options)

type options struct {
	logger    *zap.Logger
	channel   liveness.Channel
	store     pipeline.InstanceStore
	redisCfg  *liveness.RedisConfig
	adapters  []func(*task.Registry) error
	orchestra []pipeline.Option
}

// WithLogger sets a custom zap logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithChannel sets a pre-built liveness channel.
func WithChannel(ch liveness.Channel) Option {
	return func(o *options) { o.channel = ch }
}

// WithRedisLiveness uses a Redis-backed liveness channel, letting
// checkpoints survive full worker restarts.
func WithRedisLiveness(cfg liveness.RedisConfig) Option {
	return func(o *options) { o.redisCfg = &cfg }
}

// WithStore sets the pipeline instance archive store.
func WithStore(store pipeline.InstanceStore) Option {
	return func(o *options) { o.store = store }
}

// WithAdapters registers task adapter factories, e.g. fulfillment.Register.
func WithAdapters(register ...func(*task.Registry) error) Option {
	return func(o *options) { o.adapters = append(o.adapters, register...) }
}

// WithOrchestratorOptions forwards extra options to the orchestrator.
func WithOrchestratorOptions(opts ...pipeline.Option) Option {
	return func(o *options) { o.orchestra = append(o.orchestra, opts...) }
}

// New wires a complete engine with minimal configuration.
func New(opts ...Option) (*Engine, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	channel := o.channel
	if channel == nil && o.redisCfg != nil {
		ch, err := liveness.NewRedisChannel(*o.redisCfg, logger)
		if err != nil {
			return nil, err
		}
		channel = ch
	}
	if channel == nil {
		channel = liveness.NewHistory(logger)
	}

	registry := task.NewRegistry(logger)
	for _, register := range o.adapters {
		if err := register(registry); err != nil {
			return nil, err
		}
	}

	store := o.store
	if store == nil {
		store = pipeline.NewMemoryInstanceStore()
	}

	coord := coordinator.NewCoordinator(registry, channel, nil, logger)
	signals := coordinator.NewSignalHub(logger)

	orchOpts := append([]pipeline.Option{pipeline.WithStore(store)}, o.orchestra...)
	orch := pipeline.NewOrchestrator(coord, signals, logger, orchOpts...)

	return &Engine{
		Registry:     registry,
		Channel:      channel,
		Coordinator:  coord,
		Signals:      signals,
		Orchestrator: orch,
		Store:        store,
	}, nil
}

// Run starts a pipeline instance and drives it to a terminal state.
func (e *Engine) Run(ctx context.Context, def pipeline.Definition, input json.RawMessage) (*pipeline.Instance, error) {
	return e.Orchestrator.Run(ctx, def, input)
}

// RunAs starts a pipeline instance under a caller-chosen ID.
func (e *Engine) RunAs(ctx context.Context, def pipeline.Definition, instanceID string, input json.RawMessage) (*pipeline.Instance, error) {
	return e.Orchestrator.RunAs(ctx, def, instanceID, input)
}

// Approve delivers an approval decision to a waiting instance.
func (e *Engine) Approve(instanceID string) error {
	return e.Signals.Send(instanceID, coordinator.Decision{Approved: true, At: time.Now()})
}

// Reject delivers a rejection with feedback to a waiting instance.
func (e *Engine) Reject(instanceID, feedback string) error {
	return e.Signals.Send(instanceID, coordinator.Decision{Approved: false, Feedback: feedback, At: time.Now()})
}
