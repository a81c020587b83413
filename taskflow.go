// Package taskflow provides a top-level convenience entry point for wiring
// a resumable task execution engine with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/taskflow"
//
//	eng, err := taskflow.New(taskflow.WithAdapters(fulfillment.Register))
//	inst, err := eng.RunAs(ctx, fulfillment.Pipeline(opts), "order-A1001", input)
//
// This is a thin wrapper around [quick.New]; both produce identical results.
// Use this package when you prefer the shorter import path.
package taskflow

import (
	"github.com/BaSui01/taskflow/quick"
)

// Engine bundles a fully wired single-process deployment.
type Engine = quick.Engine

// Option configures the engine created by [New].
type Option = quick.Option

// New wires a complete in-process engine: task registry, liveness channel,
// dispatch coordinator, signal hub and pipeline orchestrator.
func New(opts ...Option) (*Engine, error) {
	return quick.New(opts...)
}

// Re-export engine options so callers never need to import quick/.

// WithLogger sets a custom zap logger. Defaults to zap.NewNop().
var WithLogger = quick.WithLogger

// WithChannel sets a pre-built liveness channel.
var WithChannel = quick.WithChannel

// WithRedisLiveness uses a Redis-backed liveness channel.
var WithRedisLiveness = quick.WithRedisLiveness

// WithStore sets the pipeline instance archive store.
var WithStore = quick.WithStore

// WithAdapters registers task adapter factories.
var WithAdapters = quick.WithAdapters

// WithOrchestratorOptions forwards extra options to the orchestrator.
var WithOrchestratorOptions = quick.WithOrchestratorOptions
