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

package metrics

import (
	"sync/atomic"

	"github.com/rulego/rulego-eip/api/types"
)

// AggregateMetrics holds the counters of an aggregator.
type AggregateMetrics struct {
	TotalIn              int64 // Number of exchanges received
	TotalCompleted       int64 // Number of groups completed and sent downstream
	CompletedBySize      int64
	CompletedByPredicate int64
	CompletedByStrategy  int64
	CompletedByInterval  int64
	CompletedByTimeout   int64
	CompletedByForce     int64
	Discarded            int64 // Number of groups discarded
}

// NewAggregateMetrics creates a new instance of AggregateMetrics.
func NewAggregateMetrics() *AggregateMetrics {
	return &AggregateMetrics{}
}

// IncrementIn increases the count of received exchanges.
func (m *AggregateMetrics) IncrementIn() {
	atomic.AddInt64(&m.TotalIn, 1)
}

// IncrementDiscarded increases the count of discarded groups.
func (m *AggregateMetrics) IncrementDiscarded() {
	atomic.AddInt64(&m.Discarded, 1)
}

// IncrementCompleted increases the total and the counter of the trigger.
// It returns false for an unknown trigger.
func (m *AggregateMetrics) IncrementCompleted(completedBy string) bool {
	atomic.AddInt64(&m.TotalCompleted, 1)
	switch completedBy {
	case types.CompletedBySize:
		atomic.AddInt64(&m.CompletedBySize, 1)
	case types.CompletedByPredicate:
		atomic.AddInt64(&m.CompletedByPredicate, 1)
	case types.CompletedByStrategy:
		atomic.AddInt64(&m.CompletedByStrategy, 1)
	case types.CompletedByInterval:
		atomic.AddInt64(&m.CompletedByInterval, 1)
	case types.CompletedByTimeout:
		atomic.AddInt64(&m.CompletedByTimeout, 1)
	case types.CompletedByForce:
		atomic.AddInt64(&m.CompletedByForce, 1)
	default:
		return false
	}
	return true
}

// Get returns a copy of the current metrics.
func (m *AggregateMetrics) Get() AggregateMetrics {
	return AggregateMetrics{
		TotalIn:              atomic.LoadInt64(&m.TotalIn),
		TotalCompleted:       atomic.LoadInt64(&m.TotalCompleted),
		CompletedBySize:      atomic.LoadInt64(&m.CompletedBySize),
		CompletedByPredicate: atomic.LoadInt64(&m.CompletedByPredicate),
		CompletedByStrategy:  atomic.LoadInt64(&m.CompletedByStrategy),
		CompletedByInterval:  atomic.LoadInt64(&m.CompletedByInterval),
		CompletedByTimeout:   atomic.LoadInt64(&m.CompletedByTimeout),
		CompletedByForce:     atomic.LoadInt64(&m.CompletedByForce),
		Discarded:            atomic.LoadInt64(&m.Discarded),
	}
}

// Reset resets all metrics to zero.
func (m *AggregateMetrics) Reset() {
	atomic.StoreInt64(&m.TotalIn, 0)
	atomic.StoreInt64(&m.TotalCompleted, 0)
	atomic.StoreInt64(&m.CompletedBySize, 0)
	atomic.StoreInt64(&m.CompletedByPredicate, 0)
	atomic.StoreInt64(&m.CompletedByStrategy, 0)
	atomic.StoreInt64(&m.CompletedByInterval, 0)
	atomic.StoreInt64(&m.CompletedByTimeout, 0)
	atomic.StoreInt64(&m.CompletedByForce, 0)
	atomic.StoreInt64(&m.Discarded, 0)
}
