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

package engine

import (
	"fmt"

	"github.com/rulego/rulego-eip/api/types"
	"github.com/rulego/rulego-eip/components/aggregate"
	"github.com/rulego/rulego-eip/components/dynamic"
	"github.com/rulego/rulego-eip/components/flow"
	"github.com/rulego/rulego-eip/components/resequence"
)

// Reifier turns definitions into processors for one route.
// It is not safe for concurrent use: placeholders are resolved in place while a subtree is built.
type Reifier struct {
	route       *Route
	provisioner *Provisioner
}

// Reify builds the processor of def. The result may be nil for clauses without outputs.
// Processors that implement types.Service are registered with the route.
// Every failure is a *types.BuildError.
func (r *Reifier) Reify(def types.Definition) (types.Processor, error) {
	if def == nil {
		return nil, types.NewBuildError(nil, fmt.Errorf("%w: nil definition", types.ErrUnsupportedDefinition))
	}
	if !def.Node().Linked() {
		types.Link(nil, def)
	}
	revert := resolvePlaceholders(r.route.config, def)
	defer revert()

	processor, err := r.build(def)
	if err != nil {
		return nil, types.NewBuildError(def, err)
	}
	if s, ok := processor.(types.Service); ok {
		r.route.addService(s)
	}
	return processor, nil
}

func (r *Reifier) build(def types.Definition) (types.Processor, error) {
	switch d := def.(type) {
	case *types.PipelineDefinition:
		return r.createChildProcessor(d, d.Outputs, true)
	case *types.FilterDefinition:
		return r.buildFilter(d)
	case *types.ProcessDefinition:
		return r.buildProcess(d)
	case *types.DelayDefinition:
		return flow.NewDelay(d.Delay, d.Expression, d.MaxPending), nil
	case *types.AggregateDefinition:
		return r.buildAggregate(d)
	case *types.ResequenceDefinition:
		return r.buildResequence(d)
	case *types.ToDynamicDefinition:
		return dynamic.NewToDynamic(r.endpointConfig(), d.Uri, d.Pattern, d.CacheSize, d.IgnoreInvalidEndpoint)
	case *types.WireTapDefinition:
		return r.buildWireTap(d)
	case *types.TryDefinition:
		return r.buildTry(d)
	case *types.CircuitBreakerDefinition:
		return r.buildCircuitBreaker(d)
	case *types.MulticastDefinition:
		return r.buildMulticast(d)
	case *types.CatchDefinition:
		return r.createChildProcessor(d, d.Outputs, false)
	case *types.FinallyDefinition:
		return r.createChildProcessor(d, d.Outputs, false)
	case *types.OnExceptionDefinition:
		return r.createChildProcessor(d, d.Outputs, false)
	case *types.OnFallbackDefinition:
		return r.createChildProcessor(d, d.Outputs, false)
	default:
		return nil, fmt.Errorf("%w: %T", types.ErrUnsupportedDefinition, def)
	}
}

// createChildProcessor reifies outputs, drops nil results and wraps each survivor in a channel.
// Several survivors run as a pipeline, a single one is used as is.
func (r *Reifier) createChildProcessor(parent types.Definition, outputs []types.Definition, mandatory bool) (types.Processor, error) {
	var processors []types.Processor
	for _, output := range outputs {
		if output == nil {
			continue
		}
		p, err := r.Reify(output)
		if err != nil {
			return nil, err
		}
		if p == nil {
			continue
		}
		channel, err := r.wrapChannel(p, parent, output)
		if err != nil {
			return nil, err
		}
		processors = append(processors, channel)
	}
	switch len(processors) {
	case 0:
		if mandatory {
			return nil, types.ErrMissingChildren
		}
		return nil, nil
	case 1:
		return processors[0], nil
	default:
		return flow.NewPipeline(processors...), nil
	}
}

func (r *Reifier) buildFilter(d *types.FilterDefinition) (types.Processor, error) {
	if d.Predicate == nil {
		return nil, fmt.Errorf("filter predicate: %w", types.ErrMissingConfiguration)
	}
	output, err := r.createChildProcessor(d, d.Outputs, true)
	if err != nil {
		return nil, err
	}
	return flow.NewFilter(d.Predicate, output), nil
}

func (r *Reifier) buildProcess(d *types.ProcessDefinition) (types.Processor, error) {
	if d.Processor != nil {
		return d.Processor, nil
	}
	if d.Ref == "" {
		return nil, fmt.Errorf("processor or ref: %w", types.ErrMissingConfiguration)
	}
	component, err := componentRegistry(r.route.config).NewComponent(d.Ref)
	if err != nil {
		return nil, err
	}
	if err := component.Init(r.route.config, d.Configuration); err != nil {
		return nil, fmt.Errorf("init component %s: %w", d.Ref, err)
	}
	return component, nil
}

func (r *Reifier) buildAggregate(d *types.AggregateDefinition) (types.Processor, error) {
	output, err := r.createChildProcessor(d, d.Outputs, true)
	if err != nil {
		return nil, err
	}
	dispatcher, owned, err := r.provisioner.Provision(d, ProvisionRequest{
		Name:      "Aggregator",
		PoolRef:   d.ExecutorRef,
		Async:     d.ParallelProcessing,
		Mandatory: true,
	})
	if err != nil {
		return nil, err
	}
	aggregator, err := aggregate.NewAggregator(r.route.config, d, output, dispatcher, owned)
	if err != nil {
		if owned {
			dispatcher.Release()
		}
		return nil, err
	}
	return aggregator, nil
}

func (r *Reifier) buildResequence(d *types.ResequenceDefinition) (types.Processor, error) {
	comparator := d.Comparator
	if comparator == nil {
		if d.Expression == nil {
			return nil, fmt.Errorf("resequence expression: %w", types.ErrMissingConfiguration)
		}
		comparator = resequence.NewExpressionComparator(d.Expression)
	}
	output, err := r.createChildProcessor(d, d.Outputs, true)
	if err != nil {
		return nil, err
	}
	if d.Stream != nil {
		return resequence.NewStreamResequencer(r.route.config, comparator, *d.Stream, output), nil
	}
	var cfg types.BatchResequencerConfig
	if d.Batch != nil {
		cfg = *d.Batch
	}
	return resequence.NewBatchResequencer(r.route.config, comparator, cfg, output), nil
}

func (r *Reifier) buildWireTap(d *types.WireTapDefinition) (types.Processor, error) {
	send, err := dynamic.NewToDynamic(r.endpointConfig(), d.Uri, types.InOnly, d.CacheSize, d.IgnoreInvalidEndpoint)
	if err != nil {
		return nil, err
	}
	dispatcher, owned, err := r.provisioner.Provision(d, ProvisionRequest{
		Name:      "WireTap",
		PoolRef:   d.ExecutorRef,
		Async:     true,
		Mandatory: true,
	})
	if err != nil {
		return nil, err
	}
	return dynamic.NewWireTap(r.route.config, send, d.IsCopy(), d.OnPrepare, dispatcher, owned), nil
}

func (r *Reifier) buildTry(d *types.TryDefinition) (types.Processor, error) {
	try, err := r.createChildProcessor(d, d.Outputs, true)
	if err != nil {
		return nil, err
	}
	var catches []flow.CatchClause
	for _, c := range d.Catches {
		if c == nil {
			continue
		}
		p, err := r.Reify(c)
		if err != nil {
			return nil, err
		}
		catches = append(catches, flow.CatchClause{Errors: c.Errors, OnWhen: c.OnWhen, Processor: p})
	}
	var finally types.Processor
	if d.Finally != nil {
		if finally, err = r.Reify(d.Finally); err != nil {
			return nil, err
		}
	}
	return flow.NewTry(try, catches, finally), nil
}

func (r *Reifier) buildCircuitBreaker(d *types.CircuitBreakerDefinition) (types.Processor, error) {
	output, err := r.createChildProcessor(d, d.Outputs, true)
	if err != nil {
		return nil, err
	}
	var fallback types.Processor
	if d.OnFallback != nil {
		if fallback, err = r.Reify(d.OnFallback); err != nil {
			return nil, err
		}
	}
	return flow.NewCircuitBreaker(output, fallback, d.FailureThreshold, d.OpenDuration), nil
}

func (r *Reifier) buildMulticast(d *types.MulticastDefinition) (types.Processor, error) {
	var branches []types.Processor
	for _, output := range d.Outputs {
		if output == nil {
			continue
		}
		p, err := r.Reify(output)
		if err != nil {
			return nil, err
		}
		if p == nil {
			continue
		}
		channel, err := r.wrapChannel(p, d, output)
		if err != nil {
			return nil, err
		}
		branches = append(branches, channel)
	}
	if len(branches) == 0 {
		return nil, types.ErrMissingChildren
	}
	dispatcher, owned, err := r.provisioner.Provision(d, ProvisionRequest{
		Name:    "Multicast",
		PoolRef: d.ExecutorRef,
		Async:   d.ParallelProcessing,
	})
	if err != nil {
		return nil, err
	}
	return flow.NewMulticast(branches, dispatcher, owned, d.StopOnException, d.Strategy), nil
}

// endpointConfig returns the route config with the endpoint registry the route resolves with.
func (r *Reifier) endpointConfig() types.Config {
	config := r.route.config
	config.Endpoints = r.route.EndpointRegistry()
	return config
}
