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

package flow

import (
	"context"
	"sync"
	"time"

	"github.com/rulego/rulego-eip/api/types"
)

// BreakerState 熔断器状态
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "halfOpen"
	default:
		return "closed"
	}
}

// CircuitBreaker opens after FailureThreshold consecutive failures of its output.
// While open, exchanges go to the fallback or fail with types.ErrCircuitOpen.
// After OpenDuration a single trial call is let through (half open); its result
// closes or reopens the breaker.
type CircuitBreaker struct {
	output           types.Processor
	fallback         types.Processor
	failureThreshold int
	openDuration     time.Duration

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	trial    bool
	now      func() time.Time
}

func NewCircuitBreaker(output, fallback types.Processor, failureThreshold int, openDuration time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if openDuration <= 0 {
		openDuration = 5 * time.Second
	}
	return &CircuitBreaker{
		output:           output,
		fallback:         fallback,
		failureThreshold: failureThreshold,
		openDuration:     openDuration,
		now:              time.Now,
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Process(ctx context.Context, exchange *types.Exchange) error {
	state, allowed := cb.acquire()
	exchange.SetProperty(types.CircuitBreakerStateProperty, state.String())
	if !allowed {
		return cb.onFallback(ctx, exchange, types.ErrCircuitOpen)
	}
	err := cb.output.Process(ctx, exchange)
	cb.release(err == nil)
	if err != nil {
		return cb.onFallback(ctx, exchange, err)
	}
	return nil
}

// acquire decides whether the call may reach the output.
func (cb *CircuitBreaker) acquire() (BreakerState, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case BreakerOpen:
		if cb.now().Sub(cb.openedAt) < cb.openDuration {
			return cb.state, false
		}
		cb.state = BreakerHalfOpen
		cb.trial = true
		return cb.state, true
	case BreakerHalfOpen:
		if cb.trial {
			return cb.state, false
		}
		cb.trial = true
		return cb.state, true
	default:
		return cb.state, true
	}
}

func (cb *CircuitBreaker) release(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if success {
		cb.state = BreakerClosed
		cb.failures = 0
		cb.trial = false
		return
	}
	cb.failures++
	if cb.state == BreakerHalfOpen || cb.failures >= cb.failureThreshold {
		cb.state = BreakerOpen
		cb.openedAt = cb.now()
		cb.trial = false
	}
}

func (cb *CircuitBreaker) onFallback(ctx context.Context, exchange *types.Exchange, err error) error {
	if cb.fallback == nil {
		return err
	}
	exchange.SetProperty(types.ExceptionCaughtProperty, err)
	return cb.fallback.Process(ctx, exchange)
}
