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

// Package base provides the shutdown bookkeeping and the component registry
// shared by the processors.
package base

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rulego/rulego-eip/api/types"
)

// DefaultShutdownTimeout 默认优雅停机超时时间
const DefaultShutdownTimeout = 10 * time.Second

// GracefulShutdown tracks in-flight operations of a processor that owns
// background work, so that Stop can wait for them.
//
// GracefulShutdown 跟踪处理器的进行中操作，停止时可以等待它们完成。
//
// Usage Pattern:
// 使用模式：
//  1. Embed GracefulShutdown in your struct  在结构体中嵌入 GracefulShutdown
//  2. Call InitGracefulShutdown() in Start  在 Start 中调用 InitGracefulShutdown()
//  3. Wrap background work with BeginOperation/EndOperation  用 BeginOperation/EndOperation 包裹后台任务
//  4. Call GracefulStop() in Stop  在 Stop 中调用 GracefulStop()
type GracefulShutdown struct {
	mu             sync.Mutex
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc

	shutdownTimeout time.Duration

	// isShuttingDown 1 表示正在停机
	isShuttingDown int32

	activeOperations int64

	logger types.Logger
}

// InitGracefulShutdown (re)initializes the shutdown state.
// timeout 为 0 时使用默认值（10秒）
func (g *GracefulShutdown) InitGracefulShutdown(logger types.Logger, timeout time.Duration) {
	if timeout == 0 {
		timeout = DefaultShutdownTimeout
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.shutdownTimeout = timeout
	g.logger = logger
	g.shutdownCtx, g.shutdownCancel = context.WithCancel(context.Background())
	atomic.StoreInt32(&g.isShuttingDown, 0)
}

// GetShutdownContext returns a context canceled by ForceStop.
func (g *GracefulShutdown) GetShutdownContext() context.Context {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.shutdownCtx == nil {
		return context.Background()
	}
	return g.shutdownCtx
}

// IsShuttingDown returns whether GracefulStop has been called.
func (g *GracefulShutdown) IsShuttingDown() bool {
	return atomic.LoadInt32(&g.isShuttingDown) == 1
}

// ShutdownTimeout returns the configured wait bound.
func (g *GracefulShutdown) ShutdownTimeout() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.shutdownTimeout == 0 {
		return DefaultShutdownTimeout
	}
	return g.shutdownTimeout
}

// GracefulStop sets the shutdown flag and calls stopFunc once.
// 第一阶段：设置停机标志拒绝新操作；stopFunc 负责等待进行中的操作
func (g *GracefulShutdown) GracefulStop(stopFunc func()) {
	if !atomic.CompareAndSwapInt32(&g.isShuttingDown, 0, 1) {
		return
	}
	if stopFunc != nil {
		stopFunc()
	}
}

// ForceStop cancels the shutdown context to interrupt ongoing operations.
func (g *GracefulShutdown) ForceStop() {
	g.mu.Lock()
	cancel := g.shutdownCancel
	g.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// CheckShutdownSignal returns an error wrapping types.ErrStopped once shutdown started.
func (g *GracefulShutdown) CheckShutdownSignal() error {
	if g.IsShuttingDown() {
		return fmt.Errorf("operation cancelled due to shutdown: %w", types.ErrStopped)
	}
	return nil
}

// BeginOperation registers an in-flight operation.
// 停机期间返回 false，调用方不应再开始新操作
func (g *GracefulShutdown) BeginOperation() bool {
	atomic.AddInt64(&g.activeOperations, 1)
	if g.IsShuttingDown() {
		atomic.AddInt64(&g.activeOperations, -1)
		return false
	}
	return true
}

// IncrementActiveOperations registers an in-flight operation even during shutdown.
// Used by work the stop sequence itself starts.
func (g *GracefulShutdown) IncrementActiveOperations() int64 {
	return atomic.AddInt64(&g.activeOperations, 1)
}

// EndOperation releases an operation registered by BeginOperation or IncrementActiveOperations.
func (g *GracefulShutdown) EndOperation() int64 {
	return atomic.AddInt64(&g.activeOperations, -1)
}

// GetActiveOperations returns the current number of active operations.
func (g *GracefulShutdown) GetActiveOperations() int64 {
	return atomic.LoadInt64(&g.activeOperations)
}

// WaitForActiveOperations waits until no operation is active.
// 超时返回 false
func (g *GracefulShutdown) WaitForActiveOperations(timeout time.Duration) bool {
	if atomic.LoadInt64(&g.activeOperations) <= 0 {
		return true
	}
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case <-deadline.C:
			g.logf("timeout waiting for %d active operations", atomic.LoadInt64(&g.activeOperations))
			return false
		case <-ticker.C:
			if atomic.LoadInt64(&g.activeOperations) <= 0 {
				return true
			}
		}
	}
}

func (g *GracefulShutdown) logf(format string, args ...interface{}) {
	g.mu.Lock()
	logger := g.logger
	g.mu.Unlock()
	if logger != nil {
		logger.Printf(format, args...)
	}
}
