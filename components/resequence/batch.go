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

package resequence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rulego/rulego-eip/api/types"
	"github.com/rulego/rulego-eip/components/base"
)

var _ types.Service = (*BatchResequencer)(nil)

// BatchResequencer stages exchanges and flushes them sorted, when BatchSize exchanges are
// staged or BatchTimeout elapsed since the first exchange of the window.
type BatchResequencer struct {
	base.GracefulShutdown
	cfg        types.BatchResequencerConfig
	comparator types.SequenceComparator
	output     types.Processor
	logger     types.Logger

	mu     sync.Mutex
	staged []*types.Exchange
	timer  *time.Timer
	// window 当前窗口编号，过期的定时器据此忽略
	window uint64
	// flushMu keeps the flushes in window order
	flushMu sync.Mutex
}

// NewBatchResequencer 创建批量重排序器
func NewBatchResequencer(config types.Config, comparator types.SequenceComparator, cfg types.BatchResequencerConfig, output types.Processor) *BatchResequencer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = time.Second
	}
	r := &BatchResequencer{
		cfg:        cfg,
		comparator: comparator,
		output:     output,
		logger:     types.NewLogger(config.Logger),
	}
	r.InitGracefulShutdown(r.logger, config.ShutdownTimeout)
	return r
}

func (r *BatchResequencer) Process(ctx context.Context, exchange *types.Exchange) error {
	if !r.BeginOperation() {
		return r.CheckShutdownSignal()
	}
	defer r.EndOperation()
	if !r.comparator.IsValid(exchange) {
		if r.cfg.IgnoreInvalidExchanges {
			return nil
		}
		return fmt.Errorf("%w: exchange %s", types.ErrInvalidPosition, exchange.Id)
	}

	r.mu.Lock()
	if !r.cfg.AllowDuplicates && r.containsLocked(exchange) {
		r.mu.Unlock()
		if r.cfg.RejectDuplicates && !r.cfg.IgnoreInvalidExchanges {
			return fmt.Errorf("%w: exchange %s", types.ErrDuplicatePosition, exchange.Id)
		}
		return nil
	}
	r.staged = append(r.staged, exchange)
	if len(r.staged) == 1 {
		window := r.window
		r.timer = time.AfterFunc(r.cfg.BatchTimeout, func() {
			r.onTimeout(window)
		})
	}
	if len(r.staged) < r.cfg.BatchSize {
		r.mu.Unlock()
		return nil
	}
	batch := r.takeLocked()
	r.flushMu.Lock()
	r.mu.Unlock()
	defer r.flushMu.Unlock()
	return r.flush(ctx, batch)
}

// Staged returns the number of exchanges waiting in the current window.
func (r *BatchResequencer) Staged() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.staged)
}

func (r *BatchResequencer) containsLocked(exchange *types.Exchange) bool {
	for _, staged := range r.staged {
		if r.comparator.Compare(staged, exchange) == 0 {
			return true
		}
	}
	return false
}

// takeLocked closes the current window and returns its exchanges.
func (r *BatchResequencer) takeLocked() []*types.Exchange {
	batch := r.staged
	r.staged = nil
	r.window++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	return batch
}

func (r *BatchResequencer) onTimeout(window uint64) {
	r.mu.Lock()
	if window != r.window {
		r.mu.Unlock()
		return
	}
	batch := r.takeLocked()
	r.flushMu.Lock()
	r.mu.Unlock()
	defer r.flushMu.Unlock()
	if err := r.flush(r.GetShutdownContext(), batch); err != nil {
		r.logger.Printf("resequence: batch flush failed: %v", err)
	}
}

// flush sorts batch and sends it downstream. Must hold flushMu.
func (r *BatchResequencer) flush(ctx context.Context, batch []*types.Exchange) error {
	if len(batch) == 0 {
		return nil
	}
	sort.SliceStable(batch, func(i, j int) bool {
		if r.cfg.Reverse {
			return r.comparator.Compare(batch[i], batch[j]) > 0
		}
		return r.comparator.Compare(batch[i], batch[j]) < 0
	})
	var errs []error
	for _, exchange := range batch {
		if err := base.SafeProcess(ctx, r.output, exchange); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *BatchResequencer) Start() error {
	return nil
}

// Stop rejects new exchanges, then flushes the current window.
func (r *BatchResequencer) Stop() error {
	var err error
	r.GracefulStop(func() {
		r.WaitForActiveOperations(r.ShutdownTimeout())
		r.mu.Lock()
		batch := r.takeLocked()
		r.flushMu.Lock()
		r.mu.Unlock()
		defer r.flushMu.Unlock()
		err = r.flush(r.GetShutdownContext(), batch)
	})
	return err
}
