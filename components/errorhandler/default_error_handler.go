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
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rulego/rulego-eip/api/types"
)

// DefaultErrorHandler redelivers the exchange to its target according to the policy.
// Once redeliveries are exhausted, the first matching onException clause of the route
// runs and decides whether the error is handled (route stops, caller sees success),
// continued (route goes on) or propagated. Without a matching clause the failure goes
// to the dead letter endpoint when one is configured, else to the caller.
type DefaultErrorHandler struct {
	target  types.Processor
	policy  RedeliveryPolicy
	clauses []*types.ExceptionClause
	logger  types.Logger
	// deadLetter 死信端点，为空则把错误返回给调用方
	deadLetter    types.Processor
	deadLetterUri string
}

// NewDefaultErrorHandler 创建默认错误处理器
func NewDefaultErrorHandler(target types.Processor, policy RedeliveryPolicy, clauses []*types.ExceptionClause, logger types.Logger) *DefaultErrorHandler {
	return &DefaultErrorHandler{
		target:  target,
		policy:  policy,
		clauses: clauses,
		logger:  types.NewLogger(logger),
	}
}

// Target returns the processor guarded by the handler.
func (h *DefaultErrorHandler) Target() types.Processor {
	return h.target
}

// Policy returns the redelivery policy.
func (h *DefaultErrorHandler) Policy() RedeliveryPolicy {
	return h.policy
}

func (h *DefaultErrorHandler) Process(ctx context.Context, exchange *types.Exchange) error {
	err := h.target.Process(ctx, exchange)
	if err == nil || IsExhausted(err) {
		return err
	}
	clause := h.findClause(exchange, err)
	for attempt := 1; err != nil; attempt++ {
		if h.policy.exhausted(attempt-1, h.maximumRedeliveries(clause)) {
			break
		}
		if waitErr := wait(ctx, h.policy.Delay(attempt)); waitErr != nil {
			return errors.Join(err, waitErr)
		}
		exchange.Metadata.PutValue(types.RedeliveryCounterHeader, strconv.Itoa(attempt))
		if err = h.target.Process(ctx, exchange); err != nil {
			if IsExhausted(err) {
				return err
			}
			clause = h.findClause(exchange, err)
		}
	}
	if err == nil {
		return nil
	}
	return h.handleExhausted(ctx, exchange, clause, err)
}

func (h *DefaultErrorHandler) maximumRedeliveries(clause *types.ExceptionClause) int {
	if clause != nil && clause.Definition.MaximumRedeliveries != nil {
		return *clause.Definition.MaximumRedeliveries
	}
	return h.policy.MaximumRedeliveries
}

func (h *DefaultErrorHandler) findClause(exchange *types.Exchange, err error) *types.ExceptionClause {
	for _, c := range h.clauses {
		if c.Matches(exchange, err) {
			return c
		}
	}
	return nil
}

func (h *DefaultErrorHandler) handleExhausted(ctx context.Context, exchange *types.Exchange, clause *types.ExceptionClause, err error) error {
	exchange.SetProperty(types.ExceptionCaughtProperty, err)
	if clause != nil {
		if clause.Processor != nil {
			if clauseErr := clause.Processor.Process(ctx, exchange); clauseErr != nil {
				return &exhaustedError{err: fmt.Errorf("onException failed: %w", errors.Join(err, clauseErr))}
			}
		}
		switch {
		case clause.Definition.Continued:
			return nil
		case clause.Definition.Handled:
			exchange.SetProperty(types.RouteStopProperty, true)
			return nil
		default:
			return &exhaustedError{err: err}
		}
	}
	if h.deadLetter != nil {
		exchange.SetProperty(types.FailureEndpointProperty, h.deadLetterUri)
		if dlErr := h.deadLetter.Process(ctx, exchange); dlErr != nil {
			h.logger.Printf("dead letter channel %s failed for exchange %s: %v", h.deadLetterUri, exchange.Id, dlErr)
			return &exhaustedError{err: errors.Join(err, dlErr)}
		}
		return nil
	}
	return &exhaustedError{err: err}
}

// exhaustedError is returned once a handler gave up on an exchange.
// Enclosing handlers pass it through without redelivering.
type exhaustedError struct {
	err error
}

func (e *exhaustedError) Error() string {
	return e.err.Error()
}

func (e *exhaustedError) Unwrap() error {
	return e.err
}

// IsExhausted reports whether err was returned by an error handler that exhausted its redeliveries.
func IsExhausted(err error) bool {
	var exhausted *exhaustedError
	return errors.As(err, &exhausted)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NoErrorHandler hands every error to the caller.
type NoErrorHandler struct {
	target types.Processor
}

func NewNoErrorHandler(target types.Processor) *NoErrorHandler {
	return &NoErrorHandler{target: target}
}

func (h *NoErrorHandler) Process(ctx context.Context, exchange *types.Exchange) error {
	return h.target.Process(ctx, exchange)
}
