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
	"errors"
)

// The interfaces in this file are the interception points of the channels built
// around every processor. They work like the aspects of a rule engine: behaviour
// such as tracing, metrics or fault handling is added without touching the processors.
//
// 本文件中的接口是通道的拦截点，类似切面机制：在不修改处理器的情况下为其增加追踪、统计、故障处理等行为。

// InterceptStrategy wraps the processor of a channel.
// Strategies are applied in the order context, route, node; within a level by Order.
// The first applied strategy wraps innermost.
type InterceptStrategy interface {
	// Order returns the execution order, the smaller the value, the higher the priority
	// Order 返回执行顺序，值越小，优先级越高
	Order() int
	// WrapProcessor returns the processor to use in place of target.
	// next is the unwrapped processor of the channel, the one the innermost strategy received as target.
	WrapProcessor(definition Definition, target Processor, next Processor) (Processor, error)
}

// FaultHandlingStrategy marks strategies that turn faults into errors.
// They are skipped when the route disables fault handling.
type FaultHandlingStrategy interface {
	InterceptStrategy
	HandlesFault() bool
}

// RouteContext is the build-time view of the route being reified.
type RouteContext interface {
	// RouteId 路由ID
	RouteId() string
	// Config 配置
	Config() Config
	// ExceptionClauses returns the onException clauses of the route, in declaration order.
	ExceptionClauses() []*ExceptionClause
	// EndpointRegistry resolves target uris
	EndpointRegistry() EndpointRegistry
}

// ErrorHandlerFactory creates the error handler installed on a channel.
type ErrorHandlerFactory interface {
	CreateErrorHandler(route RouteContext, definition Definition, target Processor) (Processor, error)
}

// ErrorHandlerFactoryFunc adapts a function to ErrorHandlerFactory.
type ErrorHandlerFactoryFunc func(route RouteContext, definition Definition, target Processor) (Processor, error)

func (f ErrorHandlerFactoryFunc) CreateErrorHandler(route RouteContext, definition Definition, target Processor) (Processor, error) {
	return f(route, definition, target)
}

// LifecycleListener is notified of the error handlers attached during reification.
type LifecycleListener interface {
	OnErrorHandlerAdd(route RouteContext, definition Definition, errorHandler Processor, factory ErrorHandlerFactory)
}

// LifecycleListenerFunc adapts a function to LifecycleListener.
type LifecycleListenerFunc func(route RouteContext, definition Definition, errorHandler Processor, factory ErrorHandlerFactory)

func (f LifecycleListenerFunc) OnErrorHandlerAdd(route RouteContext, definition Definition, errorHandler Processor, factory ErrorHandlerFactory) {
	f(route, definition, errorHandler, factory)
}

// ExceptionClause is the reified form of an onException definition.
type ExceptionClause struct {
	Definition *OnExceptionDefinition
	// Processor runs the outputs of the clause, may be nil
	Processor Processor
}

// Matches reports whether the clause handles err for the exchange.
func (c *ExceptionClause) Matches(exchange *Exchange, err error) bool {
	if c == nil || c.Definition == nil || err == nil {
		return false
	}
	matched := len(c.Definition.Errors) == 0
	for _, target := range c.Definition.Errors {
		if errors.Is(err, target) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	if c.Definition.OnWhen != nil {
		ok, whenErr := c.Definition.OnWhen.Matches(exchange)
		return whenErr == nil && ok
	}
	return true
}
