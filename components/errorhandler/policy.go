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

// Package errorhandler provides the error handlers installed on the channels of a route:
//
// - DefaultErrorHandler: redelivers, then consults the onException clauses of the route
// - DeadLetterChannel: like the default handler, then moves the failed exchange to an endpoint
// - NoErrorHandler: passes errors through untouched
//
// 错误处理器由 types.ErrorHandlerFactory 在构建路由时为每个通道创建。
package errorhandler

import (
	"math"
	"math/rand"
	"time"
)

// RedeliveryPolicy controls how often and how fast a failed exchange is redelivered.
type RedeliveryPolicy struct {
	// MaximumRedeliveries 最大重投次数，0 不重投，-1 无限重投
	MaximumRedeliveries int `mapstructure:"maximumRedeliveries"`
	// RedeliveryDelay 首次重投前的等待时间
	RedeliveryDelay time.Duration `mapstructure:"redeliveryDelay"`
	// BackOffMultiplier >1 enables exponential back off
	BackOffMultiplier float64 `mapstructure:"backOffMultiplier"`
	// MaximumRedeliveryDelay caps the back off, 0 is unbounded
	MaximumRedeliveryDelay time.Duration `mapstructure:"maximumRedeliveryDelay"`
	// Jitter randomizes each delay by ±Jitter, in [0,1]
	Jitter float64 `mapstructure:"jitter"`
}

// DefaultRedeliveryPolicy no redelivery.
func DefaultRedeliveryPolicy() RedeliveryPolicy {
	return RedeliveryPolicy{RedeliveryDelay: time.Second, BackOffMultiplier: 2, MaximumRedeliveryDelay: time.Minute}
}

// Delay returns the wait before the given (1-based) redelivery.
func (p RedeliveryPolicy) Delay(attempt int) time.Duration {
	delay := p.RedeliveryDelay
	if p.BackOffMultiplier > 1 && attempt > 1 {
		delay = time.Duration(float64(delay) * math.Pow(p.BackOffMultiplier, float64(attempt-1)))
	}
	if p.MaximumRedeliveryDelay > 0 && delay > p.MaximumRedeliveryDelay {
		delay = p.MaximumRedeliveryDelay
	}
	return applyJitter(delay, p.Jitter)
}

func applyJitter(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return d
	}
	if jitter > 1 {
		jitter = 1
	}
	factor := 1.0 + (rand.Float64()*2*jitter - jitter)
	return time.Duration(float64(d) * factor)
}

func (p RedeliveryPolicy) exhausted(attempt, maximum int) bool {
	return maximum >= 0 && attempt >= maximum
}
