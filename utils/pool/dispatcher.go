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

package pool

import (
	"strings"
	"sync/atomic"

	"github.com/rulego/rulego-eip/api/types"
)

const (
	// PolicyCallerRuns 工作池饱和时在调用方协程执行任务
	PolicyCallerRuns = "CallerRuns"
	// PolicyAbort 工作池饱和时返回 types.ErrPoolSaturated
	PolicyAbort = "Abort"
)

var (
	_ types.Dispatcher = (*InlineDispatcher)(nil)
	_ types.Dispatcher = (*PooledDispatcher)(nil)
)

// InlineDispatcher runs every task on the submitting goroutine.
type InlineDispatcher struct {
	released int32
}

// NewInlineDispatcher creates an InlineDispatcher.
func NewInlineDispatcher() *InlineDispatcher {
	return &InlineDispatcher{}
}

func (d *InlineDispatcher) Submit(task func()) error {
	if atomic.LoadInt32(&d.released) == 1 {
		return types.ErrDispatcherReleased
	}
	task()
	return nil
}

func (d *InlineDispatcher) Release() {
	atomic.StoreInt32(&d.released, 1)
}

// PooledDispatcher runs tasks on a WorkerPool and applies the rejected policy
// of its profile when the pool is saturated.
type PooledDispatcher struct {
	Profile  types.ThreadPoolProfile
	pool     *WorkerPool
	released int32
}

// NewPooledDispatcher creates and starts a dispatcher from a thread pool profile.
func NewPooledDispatcher(profile types.ThreadPoolProfile) *PooledDispatcher {
	wp := &WorkerPool{
		MaxWorkersCount:       profile.MaxPoolSize,
		MaxIdleWorkerDuration: profile.KeepAliveTime,
	}
	wp.Start()
	return &PooledDispatcher{Profile: profile, pool: wp}
}

func (d *PooledDispatcher) Submit(task func()) error {
	if atomic.LoadInt32(&d.released) == 1 {
		return types.ErrDispatcherReleased
	}
	err := d.pool.Submit(task)
	if err == nil {
		return nil
	}
	if strings.EqualFold(d.Profile.RejectedPolicy, PolicyAbort) {
		return err
	}
	task()
	return nil
}

// Release stops the underlying pool. Tasks already running are not interrupted.
func (d *PooledDispatcher) Release() {
	if atomic.CompareAndSwapInt32(&d.released, 0, 1) {
		d.pool.Release()
	}
}

// Released reports whether Release has been called.
func (d *PooledDispatcher) Released() bool {
	return atomic.LoadInt32(&d.released) == 1
}
