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

package aggregate

import (
	"sync"

	"github.com/rulego/rulego-eip/api/types"
)

var (
	_ types.AggregationRepository                  = (*MemoryAggregationRepository)(nil)
	_ types.OptimisticLockingAggregationRepository = (*MemoryAggregationRepository)(nil)
)

// MemoryAggregationRepository 基于内存的聚合仓库
// Groups are compared by identity: AddIfUnchanged and RemoveIfUnchanged succeed
// only when the stored exchange is the very instance the caller read.
type MemoryAggregationRepository struct {
	mu     sync.RWMutex
	groups map[string]*types.Exchange
}

func NewMemoryAggregationRepository() *MemoryAggregationRepository {
	return &MemoryAggregationRepository{groups: make(map[string]*types.Exchange)}
}

func (r *MemoryAggregationRepository) Get(key string) *types.Exchange {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.groups[key]
}

func (r *MemoryAggregationRepository) Add(key string, exchange *types.Exchange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[key] = exchange
}

func (r *MemoryAggregationRepository) Remove(key string, exchange *types.Exchange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.groups, key)
}

func (r *MemoryAggregationRepository) GetKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.groups))
	for k := range r.groups {
		keys = append(keys, k)
	}
	return keys
}

// AddIfUnchanged stores newExchange when the group still holds oldExchange.
// A nil oldExchange expects the group to be absent.
func (r *MemoryAggregationRepository) AddIfUnchanged(key string, oldExchange, newExchange *types.Exchange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.groups[key] != oldExchange {
		return types.ErrConcurrentModification
	}
	r.groups[key] = newExchange
	return nil
}

func (r *MemoryAggregationRepository) RemoveIfUnchanged(key string, exchange *types.Exchange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.groups[key] != exchange {
		return types.ErrConcurrentModification
	}
	delete(r.groups, key)
	return nil
}

// Len 进行中的分组数
func (r *MemoryAggregationRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups)
}
