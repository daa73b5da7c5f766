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
	"math/rand"
	"time"
)

// OptimisticLockRetryPolicy controls retries of an aggregation that lost an optimistic update.
type OptimisticLockRetryPolicy struct {
	// MaximumRetries 最大重试次数，<=0 表示不限制
	MaximumRetries int
	// RetryDelay 重试间隔，默认50ms
	RetryDelay time.Duration
	// MaximumRetryDelay 指数退避时的最大间隔，默认1s
	MaximumRetryDelay time.Duration
	// ExponentialBackOff 是否指数退避
	ExponentialBackOff bool
	// RandomBackOff 是否在 [0, delay) 内随机退避
	RandomBackOff bool
}

// DefaultOptimisticLockRetryPolicy returns the policy used when none is configured.
func DefaultOptimisticLockRetryPolicy() OptimisticLockRetryPolicy {
	return OptimisticLockRetryPolicy{
		RetryDelay:         50 * time.Millisecond,
		MaximumRetryDelay:  time.Second,
		ExponentialBackOff: true,
	}
}

// ShouldRetry reports whether another attempt may follow the given (1-based) attempt.
func (p OptimisticLockRetryPolicy) ShouldRetry(attempt int) bool {
	return p.MaximumRetries <= 0 || attempt < p.MaximumRetries
}

// Delay returns the wait before the attempt following the given one.
func (p OptimisticLockRetryPolicy) Delay(attempt int) time.Duration {
	delay := p.RetryDelay
	if p.ExponentialBackOff {
		for i := 1; i < attempt && (p.MaximumRetryDelay <= 0 || delay < p.MaximumRetryDelay); i++ {
			delay *= 2
		}
		if p.MaximumRetryDelay > 0 && delay > p.MaximumRetryDelay {
			delay = p.MaximumRetryDelay
		}
	}
	if p.RandomBackOff && delay > 0 {
		delay = time.Duration(rand.Int63n(int64(delay)))
	}
	return delay
}
