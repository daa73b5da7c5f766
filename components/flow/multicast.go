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
	"errors"
	"fmt"
	"sync"

	"github.com/rulego/rulego-eip/api/types"
	"github.com/rulego/rulego-eip/components/base"
	"golang.org/x/sync/errgroup"
)

// Multicast sends a correlated copy of the exchange to every branch.
// With a strategy the branch results are merged, in branch order, and copied back
// into the original exchange.
type Multicast struct {
	branches        []types.Processor
	dispatcher      types.Dispatcher
	ownsDispatcher  bool
	stopOnException bool
	strategy        types.AggregationStrategy
}

// NewMulticast creates a multicast. A nil dispatcher processes the branches sequentially.
func NewMulticast(branches []types.Processor, dispatcher types.Dispatcher, ownsDispatcher bool,
	stopOnException bool, strategy types.AggregationStrategy) *Multicast {
	return &Multicast{
		branches:        branches,
		dispatcher:      dispatcher,
		ownsDispatcher:  ownsDispatcher,
		stopOnException: stopOnException,
		strategy:        strategy,
	}
}

func (m *Multicast) Process(ctx context.Context, exchange *types.Exchange) error {
	copies := make([]*types.Exchange, len(m.branches))
	for i := range m.branches {
		copies[i] = exchange.CorrelatedCopy()
		copies[i].SetProperty(types.MulticastIndexProperty, i)
	}
	var err error
	if m.dispatcher == nil {
		err = m.sequential(ctx, copies)
	} else {
		err = m.parallel(ctx, copies)
	}
	if err != nil {
		return err
	}
	return m.merge(exchange, copies)
}

func (m *Multicast) sequential(ctx context.Context, copies []*types.Exchange) error {
	var errs []error
	for i, branch := range m.branches {
		if err := branch.Process(ctx, copies[i]); err != nil {
			err = fmt.Errorf("multicast branch %d: %w", i, err)
			if m.stopOnException {
				return err
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multicast) parallel(ctx context.Context, copies []*types.Exchange) error {
	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	var errs []error
	for i, branch := range m.branches {
		i, branch := i, branch
		g.Go(func() error {
			done := make(chan error, 1)
			if err := m.dispatcher.Submit(func() {
				done <- base.SafeProcess(gctx, branch, copies[i])
			}); err != nil {
				done <- err
			}
			if err := <-done; err != nil {
				err = fmt.Errorf("multicast branch %d: %w", i, err)
				if m.stopOnException {
					return err
				}
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

func (m *Multicast) merge(exchange *types.Exchange, copies []*types.Exchange) error {
	if m.strategy == nil {
		return nil
	}
	var result *types.Exchange
	for _, c := range copies {
		merged, err := m.strategy.Aggregate(result, c)
		if err != nil {
			return err
		}
		if merged == nil {
			return types.ErrNilAggregation
		}
		result = merged
	}
	if result != nil {
		exchange.Data = result.Data
		exchange.Type = result.Type
		exchange.Metadata = result.Metadata.Copy()
	}
	return nil
}

func (m *Multicast) Start() error {
	return nil
}

// Stop releases an owned dispatcher.
func (m *Multicast) Stop() error {
	if m.ownsDispatcher && m.dispatcher != nil {
		m.dispatcher.Release()
	}
	return nil
}
