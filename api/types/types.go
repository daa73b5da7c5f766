/*
 * Copyright 2023 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package types defines the message model, the processor contract, the route
// definition variants and the extension points of the reification engine.
package types

import (
	"context"
	"time"
)

// Processor is the runtime unit of work built from a Definition.
// A nil error signals success.
type Processor interface {
	Process(ctx context.Context, exchange *Exchange) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, exchange *Exchange) error

func (f ProcessorFunc) Process(ctx context.Context, exchange *Exchange) error {
	return f(ctx, exchange)
}

// Service is implemented by processors that own background timers or pools.
// The route starts its services after reification and stops them in reverse order.
type Service interface {
	Start() error
	Stop() error
}

// Expression evaluates a value against an exchange.
type Expression interface {
	Evaluate(exchange *Exchange) (interface{}, error)
}

// ExpressionFunc adapts a function to Expression.
type ExpressionFunc func(exchange *Exchange) (interface{}, error)

func (f ExpressionFunc) Evaluate(exchange *Exchange) (interface{}, error) {
	return f(exchange)
}

// Predicate evaluates a condition against an exchange.
type Predicate interface {
	Matches(exchange *Exchange) (bool, error)
}

// PredicateFunc adapts a function to Predicate.
type PredicateFunc func(exchange *Exchange) (bool, error)

func (f PredicateFunc) Matches(exchange *Exchange) (bool, error) {
	return f(exchange)
}

// AggregationStrategy merges a new exchange into the aggregated one.
// oldExchange is nil for the first exchange of a group. Returning nil is an error.
type AggregationStrategy interface {
	Aggregate(oldExchange, newExchange *Exchange) (*Exchange, error)
}

// AggregationStrategyFunc adapts a function to AggregationStrategy.
type AggregationStrategyFunc func(oldExchange, newExchange *Exchange) (*Exchange, error)

func (f AggregationStrategyFunc) Aggregate(oldExchange, newExchange *Exchange) (*Exchange, error) {
	return f(oldExchange, newExchange)
}

// PreCompletionAwareStrategy decides, before merging, whether the current group
// completes and the incoming exchange starts a new one.
type PreCompletionAwareStrategy interface {
	AggregationStrategy
	PreComplete(oldExchange, newExchange *Exchange) bool
}

// CompletionAwareStrategy is notified when a group completes.
type CompletionAwareStrategy interface {
	AggregationStrategy
	OnCompletion(exchange *Exchange)
}

// TimeoutAwareStrategy is notified when a group completes by timeout.
type TimeoutAwareStrategy interface {
	AggregationStrategy
	Timeout(exchange *Exchange, timeout time.Duration)
}

// OptimisticLockFailureAwareStrategy is notified when an optimistic update loses the race.
type OptimisticLockFailureAwareStrategy interface {
	AggregationStrategy
	OnOptimisticLockFailure(oldExchange, newExchange *Exchange)
}

// AggregationRepository stores the in-progress aggregation groups.
// Implementations must be safe for concurrent use; GetKeys may run concurrently with mutations.
type AggregationRepository interface {
	Get(key string) *Exchange
	Add(key string, exchange *Exchange)
	Remove(key string, exchange *Exchange)
	GetKeys() []string
}

// OptimisticLockingAggregationRepository detects concurrent modification of a group.
// AddIfUnchanged and RemoveIfUnchanged return ErrConcurrentModification when the
// stored exchange is no longer oldExchange.
type OptimisticLockingAggregationRepository interface {
	AggregationRepository
	AddIfUnchanged(key string, oldExchange, newExchange *Exchange) error
	RemoveIfUnchanged(key string, exchange *Exchange) error
}

// SequenceComparator orders exchanges for the resequencers.
type SequenceComparator interface {
	// Compare returns a negative number when o1 comes before o2, 0 when equal, positive otherwise.
	Compare(o1, o2 *Exchange) int
	// Successor reports whether o1 is the direct successor of o2.
	Successor(o1, o2 *Exchange) bool
	// IsValid reports whether a position can be computed for o.
	IsValid(o *Exchange) bool
}

// Dispatcher runs tasks either on the calling goroutine or on a worker pool.
type Dispatcher interface {
	Submit(task func()) error
	Release()
}

// PoolRegistry looks up shared dispatchers by name.
type PoolRegistry interface {
	Lookup(name string) (Dispatcher, bool)
}

// EndpointRegistry resolves a target uri to a processor.
type EndpointRegistry interface {
	Resolve(uri string) (Processor, error)
}

// Configuration 组件配置类型
type Configuration map[string]interface{}

// Component is a processor registered by type and created per Process definition.
type Component interface {
	Processor
	// Type 返回组件类型
	Type() string
	// New 创建新实例
	New() Component
	// Init 初始化组件，configuration 通过 mapstructure 解码到组件配置结构体
	Init(config Config, configuration Configuration) error
}

// ComponentRegistry 组件注册器
type ComponentRegistry interface {
	Register(component Component) error
	Unregister(componentType string) error
	NewComponent(componentType string) (Component, error)
}
