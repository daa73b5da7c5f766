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
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rulego/rulego-eip/api/types"
	"github.com/rulego/rulego-eip/utils/cast"
)

// Delay holds the exchange before returning. The duration comes from expression,
// in milliseconds, falling back to delay when the expression evaluates to nil.
// At most maxPending exchanges are held at the same time when maxPending > 0.
type Delay struct {
	delay      time.Duration
	expression types.Expression
	maxPending int64
	pending    int64
}

func NewDelay(delay time.Duration, expression types.Expression, maxPending int) *Delay {
	return &Delay{delay: delay, expression: expression, maxPending: int64(maxPending)}
}

// Pending returns the number of exchanges being delayed.
func (d *Delay) Pending() int {
	return int(atomic.LoadInt64(&d.pending))
}

func (d *Delay) Process(ctx context.Context, exchange *types.Exchange) error {
	duration, err := d.duration(exchange)
	if err != nil {
		return err
	}
	if duration <= 0 {
		return nil
	}
	if n := atomic.AddInt64(&d.pending, 1); d.maxPending > 0 && n > d.maxPending {
		atomic.AddInt64(&d.pending, -1)
		return fmt.Errorf("delay: %d exchanges pending: %w", d.maxPending, types.ErrCapacity)
	}
	defer atomic.AddInt64(&d.pending, -1)
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (d *Delay) duration(exchange *types.Exchange) (time.Duration, error) {
	if d.expression == nil {
		return d.delay, nil
	}
	v, err := d.expression.Evaluate(exchange)
	if err != nil {
		return 0, err
	}
	if v == nil || v == "" {
		return d.delay, nil
	}
	return cast.ToMillisDurationE(v)
}
