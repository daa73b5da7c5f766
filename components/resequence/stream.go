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
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rulego/rulego-eip/api/types"
	"github.com/rulego/rulego-eip/components/base"
)

var _ types.Service = (*StreamResequencer)(nil)

type element struct {
	exchange *types.Exchange
	entered  time.Time
}

// StreamResequencer keeps a buffer ordered by the comparator and delivers its head when
// the head directly follows the last delivered exchange, when it waited Timeout, or when
// the buffer exceeds Capacity. A watchdog retries delivery every DeliveryAttemptInterval.
type StreamResequencer struct {
	base.GracefulShutdown
	cfg        types.StreamResequencerConfig
	comparator types.SequenceComparator
	output     types.Processor
	logger     types.Logger

	mu            sync.Mutex
	buffer        []*element
	lastDelivered *types.Exchange
	// deliverMu 保证投递顺序
	deliverMu sync.Mutex

	lifecycleMu sync.Mutex
	started     bool
	stopCh      chan struct{}
	watchdog    sync.WaitGroup
	now         func() time.Time
}

// NewStreamResequencer 创建流式重排序器
func NewStreamResequencer(config types.Config, comparator types.SequenceComparator, cfg types.StreamResequencerConfig, output types.Processor) *StreamResequencer {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Second
	}
	if cfg.DeliveryAttemptInterval <= 0 {
		cfg.DeliveryAttemptInterval = time.Second
	}
	r := &StreamResequencer{
		cfg:        cfg,
		comparator: comparator,
		output:     output,
		logger:     types.NewLogger(config.Logger),
		stopCh:     make(chan struct{}),
		now:        time.Now,
	}
	r.InitGracefulShutdown(r.logger, config.ShutdownTimeout)
	return r
}

func (r *StreamResequencer) Process(ctx context.Context, exchange *types.Exchange) error {
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
	if r.cfg.RejectOld && r.lastDelivered != nil && r.comparator.Compare(exchange, r.lastDelivered) < 0 {
		r.mu.Unlock()
		if r.cfg.IgnoreInvalidExchanges {
			return nil
		}
		return fmt.Errorf("%w (%w): exchange %s", types.ErrMessageRejected, types.ErrCapacity, exchange.Id)
	}
	i := sort.Search(len(r.buffer), func(i int) bool {
		return r.comparator.Compare(r.buffer[i].exchange, exchange) >= 0
	})
	if i < len(r.buffer) && r.comparator.Compare(r.buffer[i].exchange, exchange) == 0 {
		r.mu.Unlock()
		return nil
	}
	r.buffer = append(r.buffer, nil)
	copy(r.buffer[i+1:], r.buffer[i:])
	r.buffer[i] = &element{exchange: exchange, entered: r.now()}
	r.mu.Unlock()

	r.deliver(r.GetShutdownContext(), false)
	return nil
}

// Buffered returns the number of exchanges waiting for delivery.
func (r *StreamResequencer) Buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffer)
}

// deliver sends every deliverable head downstream, or the whole buffer when flushAll.
func (r *StreamResequencer) deliver(ctx context.Context, flushAll bool) {
	r.deliverMu.Lock()
	defer r.deliverMu.Unlock()
	for {
		r.mu.Lock()
		head := r.nextLocked(flushAll)
		r.mu.Unlock()
		if head == nil {
			return
		}
		if err := base.SafeProcess(ctx, r.output, head); err != nil {
			r.logger.Printf("resequence: delivering exchange %s failed: %v", head.Id, err)
		}
	}
}

func (r *StreamResequencer) nextLocked(flushAll bool) *types.Exchange {
	if len(r.buffer) == 0 {
		return nil
	}
	head := r.buffer[0]
	deliverable := flushAll ||
		len(r.buffer) > r.cfg.Capacity ||
		(r.lastDelivered != nil && r.comparator.Successor(head.exchange, r.lastDelivered)) ||
		!r.now().Before(head.entered.Add(r.cfg.Timeout))
	if !deliverable {
		return nil
	}
	r.buffer[0] = nil
	r.buffer = r.buffer[1:]
	r.lastDelivered = head.exchange
	return head.exchange
}

// Start launches the delivery watchdog.
func (r *StreamResequencer) Start() error {
	r.lifecycleMu.Lock()
	defer r.lifecycleMu.Unlock()
	if r.started {
		return nil
	}
	r.started = true
	r.watchdog.Add(1)
	go func() {
		defer r.watchdog.Done()
		ticker := time.NewTicker(r.cfg.DeliveryAttemptInterval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.deliver(r.GetShutdownContext(), false)
			}
		}
	}()
	return nil
}

// Stop stops the watchdog. The buffered exchanges are delivered when FlushOnStop, else dropped.
func (r *StreamResequencer) Stop() error {
	r.lifecycleMu.Lock()
	select {
	case <-r.stopCh:
		r.lifecycleMu.Unlock()
		return nil
	default:
		close(r.stopCh)
	}
	r.lifecycleMu.Unlock()
	r.watchdog.Wait()

	r.GracefulStop(func() {
		r.WaitForActiveOperations(r.ShutdownTimeout())
		if r.cfg.FlushOnStop {
			r.deliver(r.GetShutdownContext(), true)
			return
		}
		r.mu.Lock()
		dropped := len(r.buffer)
		r.buffer = nil
		r.mu.Unlock()
		if dropped > 0 {
			r.logger.Printf("resequence: %d buffered exchanges dropped on stop", dropped)
		}
	})
	return nil
}
