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
	"context"
	"fmt"
	"sort"

	"github.com/rulego/rulego-eip/api/types"
)

var _ types.Processor = (*Channel)(nil)

// Channel wraps the processor built for a definition with the interceptors of the
// context, the route and the definition, and with an error handler when the position
// of the definition in the route calls for one.
type Channel struct {
	definition types.Definition
	// nextProcessor 未经包装的处理器
	nextProcessor types.Processor
	// output 拦截器包装后的处理器
	output       types.Processor
	errorHandler types.Processor
	strategies   []types.InterceptStrategy
}

// Definition returns the definition the channel was built for.
func (c *Channel) Definition() types.Definition {
	return c.definition
}

// NextProcessor returns the unwrapped processor.
func (c *Channel) NextProcessor() types.Processor {
	return c.nextProcessor
}

// Output returns the processor after interception, the target of the error handler.
func (c *Channel) Output() types.Processor {
	return c.output
}

// ErrorHandler returns the error handler, nil when none is attached.
func (c *Channel) ErrorHandler() types.Processor {
	return c.errorHandler
}

// InterceptStrategies returns the applied strategies in application order.
func (c *Channel) InterceptStrategies() []types.InterceptStrategy {
	return c.strategies
}

func (c *Channel) Process(ctx context.Context, exchange *types.Exchange) error {
	var err error
	if c.errorHandler != nil {
		err = c.errorHandler.Process(ctx, exchange)
	} else {
		err = c.output.Process(ctx, exchange)
	}
	if err != nil {
		return types.NewProcessingError(nodeId(c.definition), exchange, err)
	}
	return nil
}

// wrapChannel wraps processor, built for child (or for def itself when child is nil).
// def is the definition whose outputs are being wrapped and decides about the error handler.
func (r *Reifier) wrapChannel(processor types.Processor, def types.Definition, child types.Definition) (*Channel, error) {
	target := def
	if child != nil {
		target = child
	}
	channel := &Channel{definition: target, nextProcessor: processor, output: processor}
	for _, strategy := range r.interceptStrategies(target) {
		wrapped, err := strategy.WrapProcessor(target, channel.output, processor)
		if err != nil {
			return nil, types.NewBuildError(target, fmt.Errorf("intercept strategy: %w", err))
		}
		if wrapped != nil {
			channel.output = wrapped
		}
		channel.strategies = append(channel.strategies, strategy)
	}
	if !needsErrorHandler(def, child) {
		return channel, nil
	}
	factory := r.route.errorHandlerFactory()
	handler, err := factory.CreateErrorHandler(r.route, target, channel.output)
	if err != nil {
		return nil, types.NewBuildError(target, fmt.Errorf("error handler: %w", err))
	}
	for _, listener := range r.route.config.LifecycleListeners {
		listener.OnErrorHandlerAdd(r.route, target, handler, factory)
	}
	channel.errorHandler = handler
	return channel, nil
}

// needsErrorHandler decides by the ancestry of def.
//
//	try/catch/finally, onException   never
//	circuit breaker                  only the breaker itself, with InheritErrorHandler explicitly true
//	multicast                        only the multicast itself, with ShareUnitOfWork
//	otherwise                        unless InheritErrorHandler is explicitly false
func needsErrorHandler(def types.Definition, child types.Definition) bool {
	node := def.Node()
	switch node.Ancestry() {
	case types.AncestryTryCatchFinally, types.AncestryOnException:
		return false
	case types.AncestryCircuitBreaker:
		return node.InheritErrorHandler != nil && *node.InheritErrorHandler && child == nil
	case types.AncestryMulticast:
		mc, ok := def.(*types.MulticastDefinition)
		return ok && mc.ShareUnitOfWork && child == nil
	default:
		return node.InheritsErrorHandler()
	}
}

// interceptStrategies returns the strategies of the context, the route and def, in that
// order, each level sorted by Order. Fault handling strategies are dropped when the route
// disables fault handling.
func (r *Reifier) interceptStrategies(def types.Definition) []types.InterceptStrategy {
	var list []types.InterceptStrategy
	levels := [][]types.InterceptStrategy{
		r.route.config.InterceptStrategies,
		r.route.definition.InterceptStrategies,
		def.Node().InterceptStrategies,
	}
	for _, level := range levels {
		sorted := append([]types.InterceptStrategy(nil), level...)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Order() < sorted[j].Order()
		})
		for _, s := range sorted {
			if s == nil {
				continue
			}
			if r.route.definition.DisableFaultHandling {
				if fh, ok := s.(types.FaultHandlingStrategy); ok && fh.HandlesFault() {
					continue
				}
			}
			list = append(list, s)
		}
	}
	return list
}

func nodeId(def types.Definition) string {
	if def == nil {
		return ""
	}
	if id := def.Node().Id; id != "" {
		return id
	}
	return def.Kind()
}
