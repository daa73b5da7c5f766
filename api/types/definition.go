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

package types

import (
	"time"
)

// Definition is the declarative description of one routing step.
// The set of variants is closed: every variant embeds NodeDefinition, and the
// reifier switches over the concrete types declared in this file.
type Definition interface {
	// Node returns the attributes common to all definitions.
	Node() *NodeDefinition
	// Kind returns the DSL name of the definition, for example "aggregate".
	Kind() string
	// Children returns every nested definition, including clauses such as doCatch.
	Children() []Definition
	isDefinition()
}

// Ancestry classifies the structural context of a definition.
// It decides whether channels built for the definition get an error handler.
type Ancestry uint8

const (
	// AncestryDefault no special enclosing construct
	AncestryDefault Ancestry = iota
	// AncestryTryCatchFinally a doTry, doCatch or doFinally, or nested inside one
	AncestryTryCatchFinally
	// AncestryOnException an onException clause or nested inside one
	AncestryOnException
	// AncestryCircuitBreaker a circuitBreaker or nested inside one, fallback included
	AncestryCircuitBreaker
	// AncestryMulticast the multicast itself
	AncestryMulticast
)

func (a Ancestry) String() string {
	switch a {
	case AncestryTryCatchFinally:
		return "tryCatchFinally"
	case AncestryOnException:
		return "onException"
	case AncestryCircuitBreaker:
		return "circuitBreaker"
	case AncestryMulticast:
		return "multicast"
	default:
		return "default"
	}
}

type scope uint8

const (
	scopeTry scope = 1 << iota
	scopeOnException
	scopeCircuitBreaker
)

// NodeDefinition holds the attributes common to all definitions.
type NodeDefinition struct {
	// Id 节点ID
	Id string
	// Description 描述
	Description string
	// InheritErrorHandler nil means inherit (except inside a circuit breaker, where it must be set to true).
	InheritErrorHandler *bool
	// InterceptStrategies node level interceptors, applied after the context and route ones
	InterceptStrategies []InterceptStrategy

	parent   Definition
	scope    scope
	ancestry Ancestry
	linked   bool
}

func (n *NodeDefinition) Node() *NodeDefinition {
	return n
}

func (n *NodeDefinition) isDefinition() {}

// Parent returns the enclosing definition, nil for route outputs.
func (n *NodeDefinition) Parent() Definition {
	return n.parent
}

// Ancestry returns the classification computed by Link.
func (n *NodeDefinition) Ancestry() Ancestry {
	return n.ancestry
}

// Linked reports whether Link has run on the definition.
func (n *NodeDefinition) Linked() bool {
	return n.linked
}

// InheritsErrorHandler reports the tri-state flag, treating nil as true.
func (n *NodeDefinition) InheritsErrorHandler() bool {
	return n.InheritErrorHandler == nil || *n.InheritErrorHandler
}

// Link sets the parent and computes the ancestry of def and its whole subtree.
// parent is nil for the outputs of a route and for onException clauses.
func Link(parent Definition, def Definition) {
	if def == nil {
		return
	}
	n := def.Node()
	n.parent = parent
	var inherited scope
	if parent != nil {
		inherited = parent.Node().scope
	}
	n.scope = inherited | selfScope(def)
	n.ancestry = classify(def, n.scope)
	n.linked = true
	for _, child := range def.Children() {
		Link(def, child)
	}
}

func selfScope(def Definition) scope {
	switch def.(type) {
	case *TryDefinition, *CatchDefinition, *FinallyDefinition:
		return scopeTry
	case *OnExceptionDefinition:
		return scopeOnException
	case *CircuitBreakerDefinition:
		return scopeCircuitBreaker
	}
	return 0
}

func classify(def Definition, s scope) Ancestry {
	switch {
	case s&scopeTry != 0:
		return AncestryTryCatchFinally
	case s&scopeOnException != 0:
		return AncestryOnException
	case s&scopeCircuitBreaker != 0:
		return AncestryCircuitBreaker
	}
	if _, ok := def.(*MulticastDefinition); ok {
		return AncestryMulticast
	}
	return AncestryDefault
}

// Bool returns a pointer to v, for tri-state options.
func Bool(v bool) *bool {
	return &v
}

// PipelineDefinition runs its outputs in sequence.
type PipelineDefinition struct {
	NodeDefinition
	Outputs []Definition
}

func (d *PipelineDefinition) Kind() string           { return "pipeline" }
func (d *PipelineDefinition) Children() []Definition { return d.Outputs }

// FilterDefinition runs its outputs only when Predicate matches.
type FilterDefinition struct {
	NodeDefinition
	Predicate Predicate
	Outputs   []Definition
}

func (d *FilterDefinition) Kind() string           { return "filter" }
func (d *FilterDefinition) Children() []Definition { return d.Outputs }

// ProcessDefinition runs a processor, either given directly or created from
// a registered component type (Ref) configured by Configuration.
type ProcessDefinition struct {
	NodeDefinition
	Processor     Processor
	Ref           string
	Configuration Configuration
}

func (d *ProcessDefinition) Kind() string           { return "process" }
func (d *ProcessDefinition) Children() []Definition { return nil }

// DelayDefinition delays the exchange.
type DelayDefinition struct {
	NodeDefinition
	// Delay fixed delay, used when Expression is nil or evaluates to nothing
	Delay time.Duration
	// Expression delay in milliseconds
	Expression Expression
	// MaxPending bounds the exchanges delayed at the same time, 0 is unbounded
	MaxPending int
}

func (d *DelayDefinition) Kind() string           { return "delay" }
func (d *DelayDefinition) Children() []Definition { return nil }

// AggregateDefinition collects exchanges by correlation key.
type AggregateDefinition struct {
	NodeDefinition
	CorrelationExpression Expression
	Strategy              AggregationStrategy
	// Repository defaults to an in-memory repository
	Repository AggregationRepository

	CompletionPredicate              Predicate
	CompletionSize                   int
	CompletionSizeExpression         Expression
	CompletionTimeout                time.Duration
	CompletionTimeoutExpression      Expression
	CompletionTimeoutCheckerInterval time.Duration
	CompletionInterval               time.Duration
	CompletionOnNewCorrelationGroup  bool
	EagerCheckCompletion             bool

	IgnoreInvalidCorrelationKeys bool
	// CloseCorrelationKeyOnCompletion remembers completed keys and rejects late arrivals.
	CloseCorrelationKeyOnCompletion bool
	// ClosedCorrelationKeyCacheSize bounds the remembered keys, 0 is unbounded
	ClosedCorrelationKeyCacheSize int

	DiscardOnCompletionTimeout  bool
	DiscardOnAggregationFailure bool
	ForceCompletionOnStop       bool

	ParallelProcessing bool
	ExecutorRef        string

	OptimisticLocking         bool
	OptimisticLockRetryPolicy *OptimisticLockRetryPolicy

	// OnNewGroup is invoked before the first exchange of a group is merged.
	// With OptimisticLocking it is invoked once, after the new group was stored or completed
	OnNewGroup func(key string, exchange *Exchange)

	Outputs []Definition
}

func (d *AggregateDefinition) Kind() string           { return "aggregate" }
func (d *AggregateDefinition) Children() []Definition { return d.Outputs }

// BatchResequencerConfig configures the batch resequencer.
type BatchResequencerConfig struct {
	// BatchSize 批次大小，默认100
	BatchSize int
	// BatchTimeout 批次时间窗口，默认1s
	BatchTimeout time.Duration
	// AllowDuplicates admits exchanges with equal positions
	AllowDuplicates bool
	// RejectDuplicates fails a duplicate instead of dropping it silently
	RejectDuplicates bool
	// Reverse delivers in descending order
	Reverse bool
	// IgnoreInvalidExchanges drops exchanges whose position cannot be evaluated
	IgnoreInvalidExchanges bool
}

// StreamResequencerConfig configures the stream resequencer.
type StreamResequencerConfig struct {
	// Capacity 缓冲区容量，默认1000
	Capacity int
	// Timeout 元素在缓冲区中等待前驱的最长时间，默认1s
	Timeout time.Duration
	// DeliveryAttemptInterval watchdog interval, default 1s
	DeliveryAttemptInterval time.Duration
	// RejectOld rejects exchanges older than the last delivered one
	RejectOld bool
	// IgnoreInvalidExchanges drops invalid or rejected exchanges instead of failing them
	IgnoreInvalidExchanges bool
	// FlushOnStop delivers the buffered exchanges when stopping
	FlushOnStop bool
}

// ResequenceDefinition restores the order of exchanges by Expression.
// Exactly one of Batch and Stream is used; Batch is the default.
type ResequenceDefinition struct {
	NodeDefinition
	Expression Expression
	// Comparator overrides the default numeric comparator built on Expression
	Comparator SequenceComparator
	Batch      *BatchResequencerConfig
	Stream     *StreamResequencerConfig
	Outputs    []Definition
}

func (d *ResequenceDefinition) Kind() string           { return "resequence" }
func (d *ResequenceDefinition) Children() []Definition { return d.Outputs }

// ToDynamicDefinition sends to a target computed per exchange.
type ToDynamicDefinition struct {
	NodeDefinition
	// Uri composite target, segments joined by '+'
	Uri     string
	Pattern ExchangePattern
	// CacheSize bounds the resolved endpoint cache, 0 means 1000
	CacheSize             int
	IgnoreInvalidEndpoint bool
}

func (d *ToDynamicDefinition) Kind() string           { return "toD" }
func (d *ToDynamicDefinition) Children() []Definition { return nil }

// WireTapDefinition sends a copy of the exchange to a computed target, one-way and asynchronously.
type WireTapDefinition struct {
	NodeDefinition
	Uri string
	// Copy nil means true
	Copy *bool
	// OnPrepare may modify the tapped exchange before it is sent
	OnPrepare             Processor
	ExecutorRef           string
	CacheSize             int
	IgnoreInvalidEndpoint bool
}

func (d *WireTapDefinition) Kind() string           { return "wireTap" }
func (d *WireTapDefinition) Children() []Definition { return nil }

// IsCopy reports whether the exchange is copied before tapping.
func (d *WireTapDefinition) IsCopy() bool {
	return d.Copy == nil || *d.Copy
}

// TryDefinition runs its outputs and handles their failures with catch and finally clauses.
type TryDefinition struct {
	NodeDefinition
	Outputs []Definition
	Catches []*CatchDefinition
	Finally *FinallyDefinition
}

func (d *TryDefinition) Kind() string { return "doTry" }
func (d *TryDefinition) Children() []Definition {
	list := append([]Definition{}, d.Outputs...)
	for _, c := range d.Catches {
		if c != nil {
			list = append(list, c)
		}
	}
	if d.Finally != nil {
		list = append(list, d.Finally)
	}
	return list
}

// CatchDefinition handles errors matching Errors (by errors.Is) and OnWhen.
// No Errors matches every error.
type CatchDefinition struct {
	NodeDefinition
	Errors  []error
	OnWhen  Predicate
	Outputs []Definition
}

func (d *CatchDefinition) Kind() string           { return "doCatch" }
func (d *CatchDefinition) Children() []Definition { return d.Outputs }

// FinallyDefinition always runs after the try block and its catch clauses.
type FinallyDefinition struct {
	NodeDefinition
	Outputs []Definition
}

func (d *FinallyDefinition) Kind() string           { return "doFinally" }
func (d *FinallyDefinition) Children() []Definition { return d.Outputs }

// OnExceptionDefinition is a route level clause consulted by the error handler once
// redeliveries are exhausted.
type OnExceptionDefinition struct {
	NodeDefinition
	Errors []error
	OnWhen Predicate
	// Handled marks the error as handled, the caller sees success
	Handled bool
	// Continued ignores the error and lets the route continue
	Continued bool
	// MaximumRedeliveries overrides the error handler policy when set
	MaximumRedeliveries *int
	Outputs             []Definition
}

func (d *OnExceptionDefinition) Kind() string           { return "onException" }
func (d *OnExceptionDefinition) Children() []Definition { return d.Outputs }

// CircuitBreakerDefinition guards its outputs with a count based breaker.
type CircuitBreakerDefinition struct {
	NodeDefinition
	// FailureThreshold consecutive failures that open the breaker, default 5
	FailureThreshold int
	// OpenDuration time the breaker stays open before a trial call, default 5s
	OpenDuration time.Duration
	Outputs      []Definition
	OnFallback   *OnFallbackDefinition
}

func (d *CircuitBreakerDefinition) Kind() string { return "circuitBreaker" }
func (d *CircuitBreakerDefinition) Children() []Definition {
	list := append([]Definition{}, d.Outputs...)
	if d.OnFallback != nil {
		list = append(list, d.OnFallback)
	}
	return list
}

// OnFallbackDefinition runs when the breaker is open or its outputs failed.
type OnFallbackDefinition struct {
	NodeDefinition
	Outputs []Definition
}

func (d *OnFallbackDefinition) Kind() string           { return "onFallback" }
func (d *OnFallbackDefinition) Children() []Definition { return d.Outputs }

// MulticastDefinition sends a copy of the exchange to each output.
type MulticastDefinition struct {
	NodeDefinition
	ParallelProcessing bool
	ExecutorRef        string
	StopOnException    bool
	// ShareUnitOfWork makes the branches one unit: a single error handler wraps the multicast
	ShareUnitOfWork bool
	// Strategy merges the branch results into the original exchange, optional
	Strategy AggregationStrategy
	Outputs  []Definition
}

func (d *MulticastDefinition) Kind() string           { return "multicast" }
func (d *MulticastDefinition) Children() []Definition { return d.Outputs }
