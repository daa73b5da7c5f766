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

package errorhandler

import (
	"fmt"

	"github.com/rulego/rulego-eip/api/types"
)

var (
	_ types.ErrorHandlerFactory = (*DefaultErrorHandlerFactory)(nil)
	_ types.ErrorHandlerFactory = (*DeadLetterChannelFactory)(nil)
	_ types.ErrorHandlerFactory = NoErrorHandlerFactory{}
)

// DefaultErrorHandlerFactory 为每个通道创建 DefaultErrorHandler
type DefaultErrorHandlerFactory struct {
	Policy RedeliveryPolicy
}

func NewDefaultErrorHandlerFactory(policy RedeliveryPolicy) *DefaultErrorHandlerFactory {
	return &DefaultErrorHandlerFactory{Policy: policy}
}

func (f *DefaultErrorHandlerFactory) CreateErrorHandler(route types.RouteContext, definition types.Definition, target types.Processor) (types.Processor, error) {
	return NewDefaultErrorHandler(target, f.Policy, route.ExceptionClauses(), route.Config().Logger), nil
}

// DeadLetterChannelFactory creates handlers that move exhausted exchanges to Uri.
// Uri is resolved through the endpoint registry of the route when the handler is created.
type DeadLetterChannelFactory struct {
	Uri    string
	Policy RedeliveryPolicy
}

func NewDeadLetterChannelFactory(uri string, policy RedeliveryPolicy) *DeadLetterChannelFactory {
	return &DeadLetterChannelFactory{Uri: uri, Policy: policy}
}

func (f *DeadLetterChannelFactory) CreateErrorHandler(route types.RouteContext, definition types.Definition, target types.Processor) (types.Processor, error) {
	registry := route.EndpointRegistry()
	if registry == nil {
		return nil, fmt.Errorf("dead letter channel %s: %w", f.Uri, types.ErrNoSuchEndpoint)
	}
	endpoint, err := registry.Resolve(f.Uri)
	if err != nil {
		return nil, fmt.Errorf("dead letter channel: %w", err)
	}
	h := NewDefaultErrorHandler(target, f.Policy, route.ExceptionClauses(), route.Config().Logger)
	h.deadLetter = endpoint
	h.deadLetterUri = f.Uri
	return h, nil
}

// NoErrorHandlerFactory 不做错误处理
type NoErrorHandlerFactory struct{}

func (NoErrorHandlerFactory) CreateErrorHandler(route types.RouteContext, definition types.Definition, target types.Processor) (types.Processor, error) {
	return NewNoErrorHandler(target), nil
}
