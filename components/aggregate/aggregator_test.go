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
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rulego/rulego-eip/api/types"
	"github.com/rulego/rulego-eip/test"
	"github.com/rulego/rulego-eip/utils/el"
	"github.com/rulego/rulego-eip/utils/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() types.Config {
	return types.NewConfig(types.WithLogger(types.DiscardLogger()), types.WithShutdownTimeout(time.Second))
}

func newAggregator(t *testing.T, def *types.AggregateDefinition, output types.Processor) *Aggregator {
	if def.CorrelationExpression == nil {
		def.CorrelationExpression = el.Header("id")
	}
	if def.Strategy == nil {
		def.Strategy = StringJoinStrategy("+")
	}
	a, err := NewAggregator(testConfig(), def, output, nil, false)
	require.Nil(t, err)
	require.Nil(t, a.Start())
	t.Cleanup(func() { _ = a.Stop() })
	return a
}

func send(t *testing.T, a *Aggregator, key string, bodies ...string) {
	for _, b := range bodies {
		require.Nil(t, a.Process(context.Background(), test.NewExchange(b, "id", key)))
	}
}

func TestNewAggregatorValidation(t *testing.T) {
	_, err := NewAggregator(testConfig(), &types.AggregateDefinition{Strategy: UseLatestStrategy, CompletionSize: 1}, nil, nil, false)
	assert.True(t, errors.Is(err, types.ErrMissingConfiguration))

	_, err = NewAggregator(testConfig(), &types.AggregateDefinition{CorrelationExpression: el.Header("id"), CompletionSize: 1}, nil, nil, false)
	assert.True(t, errors.Is(err, types.ErrMissingConfiguration))

	// no completion trigger
	_, err = NewAggregator(testConfig(), &types.AggregateDefinition{CorrelationExpression: el.Header("id"), Strategy: UseLatestStrategy}, nil, nil, false)
	assert.True(t, errors.Is(err, types.ErrMissingConfiguration))

	_, err = NewAggregator(testConfig(), &types.AggregateDefinition{CorrelationExpression: el.Header("id"), Strategy: UseLatestStrategy,
		CompletionInterval: time.Second, CompletionTimeout: time.Second}, nil, nil, false)
	assert.True(t, errors.Is(err, types.ErrMissingConfiguration))
}

func TestCompletionSize(t *testing.T) {
	out := &test.Collector{}
	a := newAggregator(t, &types.AggregateDefinition{CompletionSize: 3}, out)
	send(t, a, "A", "a1", "a2")
	send(t, a, "B", "b1")
	assert.Equal(t, 0, out.Count())
	send(t, a, "A", "a3")
	require.Equal(t, 1, out.Count())

	ex := out.Exchanges()[0]
	assert.Equal(t, "a1+a2+a3", ex.Data)
	assert.Equal(t, 3, ex.IntProperty(types.AggregatedSizeProperty, 0))
	v, _ := ex.GetProperty(types.AggregatedCompletedByProperty)
	assert.Equal(t, types.CompletedBySize, v)
	v, _ = ex.GetProperty(types.AggregatedCorrelationKeyProperty)
	assert.Equal(t, "A", v)
	assert.Equal(t, 1, a.InProgressGroups())

	stats := a.Statistics().Get()
	assert.Equal(t, int64(4), stats.TotalIn)
	assert.Equal(t, int64(1), stats.CompletedBySize)
	a.Statistics().Reset()
	assert.Equal(t, int64(0), a.Statistics().Get().TotalIn)
}

func TestNoTriggerNoOutput(t *testing.T) {
	out := &test.Collector{}
	a := newAggregator(t, &types.AggregateDefinition{CompletionSize: 100}, out)
	keys := []string{"A", "B", "C", "D"}
	for _, key := range keys {
		send(t, a, key, key+"1", key+"2", key+"3")
	}
	assert.Equal(t, 0, out.Count())
	assert.Equal(t, len(keys), a.InProgressGroups())

	assert.Equal(t, len(keys), a.ForceCompletionOfAllGroups())
	require.Equal(t, len(keys), out.Count())
	bodies := []string{}
	for _, b := range out.Bodies() {
		bodies = append(bodies, b.(string))
	}
	sort.Strings(bodies)
	assert.Equal(t, []string{"A1+A2+A3", "B1+B2+B3", "C1+C2+C3", "D1+D2+D3"}, bodies)
	assert.Equal(t, 0, a.InProgressGroups())
}

func TestCompletionPredicateAndSizeExpression(t *testing.T) {
	out := &test.Collector{}
	a := newAggregator(t, &types.AggregateDefinition{
		CompletionPredicate:      el.MustSimplePredicate("${body == 'x+end'}"),
		CompletionSizeExpression: el.Header("size"),
	}, out)
	send(t, a, "A", "x", "end")
	require.Equal(t, 1, out.Count())
	v, _ := out.Exchanges()[0].GetProperty(types.AggregatedCompletedByProperty)
	assert.Equal(t, types.CompletedByPredicate, v)

	require.Nil(t, a.Process(context.Background(), test.NewExchange("1", "id", "B", "size", "2")))
	require.Nil(t, a.Process(context.Background(), test.NewExchange("2", "id", "B", "size", "2")))
	require.Equal(t, 2, out.Count())
	assert.Equal(t, "1+2", out.Exchanges()[1].Data)
}

func TestInvalidAndClosedCorrelationKey(t *testing.T) {
	out := &test.Collector{}
	a := newAggregator(t, &types.AggregateDefinition{CompletionSize: 1, CloseCorrelationKeyOnCompletion: true}, out)
	err := a.Process(context.Background(), test.NewExchange("no key"))
	assert.True(t, errors.Is(err, types.ErrInvalidCorrelationKey))

	send(t, a, "A", "a1")
	assert.Equal(t, 1, out.Count())
	err = a.Process(context.Background(), test.NewExchange("a2", "id", "A"))
	assert.True(t, errors.Is(err, types.ErrClosedCorrelationKey))
	assert.Equal(t, 1, a.ClosedCorrelationKeys())

	a.ResetClosedCorrelationKeys()
	send(t, a, "A", "a3")
	assert.Equal(t, 2, out.Count())

	ignoring := newAggregator(t, &types.AggregateDefinition{CompletionSize: 1, IgnoreInvalidCorrelationKeys: true}, out)
	assert.Nil(t, ignoring.Process(context.Background(), test.NewExchange("no key")))
}

func TestClosedCorrelationKeyCacheSize(t *testing.T) {
	a := newAggregator(t, &types.AggregateDefinition{CompletionSize: 1, CloseCorrelationKeyOnCompletion: true,
		ClosedCorrelationKeyCacheSize: 2}, &test.Collector{})
	send(t, a, "A", "1")
	send(t, a, "B", "1")
	send(t, a, "C", "1")
	assert.Equal(t, 2, a.ClosedCorrelationKeys())
	// A was evicted
	assert.Nil(t, a.Process(context.Background(), test.NewExchange("2", "id", "A")))
}

func TestCompletionTimeout(t *testing.T) {
	out := &test.Collector{}
	a := newAggregator(t, &types.AggregateDefinition{
		CompletionTimeout:                30 * time.Millisecond,
		CompletionTimeoutCheckerInterval: 5 * time.Millisecond,
	}, out)
	send(t, a, "A", "a1", "a2")
	test.WaitFor(t, time.Second, func() bool { return out.Count() == 1 })
	ex := out.Exchanges()[0]
	assert.Equal(t, "a1+a2", ex.Data)
	v, _ := ex.GetProperty(types.AggregatedCompletedByProperty)
	assert.Equal(t, types.CompletedByTimeout, v)
	assert.Equal(t, int64(1), a.Statistics().Get().CompletedByTimeout)
}

func TestCompletionTimeoutExpressionAndDiscard(t *testing.T) {
	out := &test.Collector{}
	a := newAggregator(t, &types.AggregateDefinition{
		CompletionTimeoutExpression:      el.Header("timeout"),
		CompletionTimeoutCheckerInterval: 5 * time.Millisecond,
		DiscardOnCompletionTimeout:       true,
	}, out)
	require.Nil(t, a.Process(context.Background(), test.NewExchange("a1", "id", "A", "timeout", "20")))
	test.WaitFor(t, time.Second, func() bool { return a.Statistics().Get().Discarded == 1 })
	assert.Equal(t, 0, out.Count())
	assert.Equal(t, 0, a.InProgressGroups())
}

func TestCompletionInterval(t *testing.T) {
	out := &test.Collector{}
	a := newAggregator(t, &types.AggregateDefinition{CompletionInterval: 20 * time.Millisecond}, out)
	send(t, a, "A", "a1")
	send(t, a, "B", "b1")
	test.WaitFor(t, time.Second, func() bool { return out.Count() == 2 })
	v, _ := out.Exchanges()[0].GetProperty(types.AggregatedCompletedByProperty)
	assert.Equal(t, types.CompletedByInterval, v)
}

func TestCompleteAllGroupsFlags(t *testing.T) {
	out := &test.Collector{}
	a := newAggregator(t, &types.AggregateDefinition{CompletionSize: 100}, out)
	send(t, a, "A", "a1")
	send(t, a, "B", "b1")

	signal := test.NewExchange("ignored", "id", "A", types.AggregationCompleteAllGroups, "true")
	require.Nil(t, a.Process(context.Background(), signal))
	assert.Equal(t, 2, out.Count())
	assert.Equal(t, 0, a.InProgressGroups())
	for _, b := range out.Bodies() {
		assert.NotEqual(t, "ignored", b)
	}

	out.Reset()
	send(t, a, "B", "b2")
	require.Nil(t, a.Process(context.Background(), test.NewExchange("a2", "id", "A", types.AggregationCompleteAllGroupsInclusive, "true")))
	bodies := []string{}
	for _, b := range out.Bodies() {
		bodies = append(bodies, b.(string))
	}
	sort.Strings(bodies)
	assert.Equal(t, []string{"a2", "b2"}, bodies)
}

func TestCompleteCurrentGroupProperty(t *testing.T) {
	out := &test.Collector{}
	strategy := types.AggregationStrategyFunc(func(oldExchange, newExchange *types.Exchange) (*types.Exchange, error) {
		if newExchange.Data == "stop" {
			newExchange.SetProperty(types.AggregationCompleteCurrentGroup, true)
		}
		return newExchange, nil
	})
	a := newAggregator(t, &types.AggregateDefinition{Strategy: strategy, CompletionSize: 100}, out)
	send(t, a, "A", "a", "stop")
	require.Equal(t, 1, out.Count())
	v, _ := out.Exchanges()[0].GetProperty(types.AggregatedCompletedByProperty)
	assert.Equal(t, types.CompletedByStrategy, v)
}

type preCompleteStrategy struct {
	types.AggregationStrategy
}

// PreComplete starts a new group when the body changes.
func (s preCompleteStrategy) PreComplete(oldExchange, newExchange *types.Exchange) bool {
	return oldExchange.Data.(string)[0] != newExchange.Data.(string)[0]
}

func TestPreCompletionAwareStrategy(t *testing.T) {
	out := &test.Collector{}
	a := newAggregator(t, &types.AggregateDefinition{Strategy: preCompleteStrategy{StringJoinStrategy("+")}}, out)
	send(t, a, "A", "x1", "x2", "y1")
	require.Equal(t, 1, out.Count())
	assert.Equal(t, "x1+x2", out.Exchanges()[0].Data)
	assert.Equal(t, "y1", a.Repository().Get("A").Data)
}

func TestEagerCheckCompletion(t *testing.T) {
	out := &test.Collector{}
	// the predicate sees the incoming exchange instead of the merged one
	a := newAggregator(t, &types.AggregateDefinition{
		CompletionPredicate:  el.MustSimplePredicate("${body == 'end'}"),
		EagerCheckCompletion: true,
	}, out)
	send(t, a, "A", "a", "end")
	require.Equal(t, 1, out.Count())
	assert.Equal(t, "a+end", out.Exchanges()[0].Data)
}

func TestCompletionOnNewCorrelationGroup(t *testing.T) {
	out := &test.Collector{}
	var newGroups []string
	a := newAggregator(t, &types.AggregateDefinition{
		CompletionOnNewCorrelationGroup: true,
		OnNewGroup: func(key string, exchange *types.Exchange) {
			newGroups = append(newGroups, key)
		},
	}, out)
	send(t, a, "A", "a1", "a2")
	assert.Equal(t, 0, out.Count())
	send(t, a, "B", "b1")
	require.Equal(t, 1, out.Count())
	assert.Equal(t, "a1+a2", out.Exchanges()[0].Data)
	assert.Equal(t, []string{"A", "B"}, newGroups)
}

func TestAggregationFailure(t *testing.T) {
	failing := types.AggregationStrategyFunc(func(oldExchange, newExchange *types.Exchange) (*types.Exchange, error) {
		if newExchange.Data == "bad" {
			return nil, test.ErrTest
		}
		if newExchange.Data == "nil" {
			return nil, nil
		}
		return StringJoinStrategy("+").Aggregate(oldExchange, newExchange)
	})
	out := &test.Collector{}
	a := newAggregator(t, &types.AggregateDefinition{Strategy: failing, CompletionSize: 3}, out)
	send(t, a, "A", "a1")
	err := a.Process(context.Background(), test.NewExchange("bad", "id", "A"))
	assert.True(t, errors.Is(err, types.ErrAggregationFailed))
	assert.True(t, errors.Is(err, test.ErrTest))
	err = a.Process(context.Background(), test.NewExchange("nil", "id", "A"))
	assert.True(t, errors.Is(err, types.ErrNilAggregation))
	// the group kept its state
	assert.Equal(t, "a1", a.Repository().Get("A").Data)

	discarding := newAggregator(t, &types.AggregateDefinition{Strategy: failing, CompletionSize: 3, DiscardOnAggregationFailure: true}, out)
	send(t, discarding, "A", "a1")
	assert.Nil(t, discarding.Process(context.Background(), test.NewExchange("bad", "id", "A")))
	assert.Equal(t, 0, discarding.InProgressGroups())
	assert.Equal(t, int64(1), discarding.Statistics().Get().Discarded)
}

func TestForceOperations(t *testing.T) {
	out := &test.Collector{}
	a := newAggregator(t, &types.AggregateDefinition{CompletionSize: 100}, out)
	send(t, a, "A", "a")
	send(t, a, "B", "b")
	send(t, a, "C", "c")
	send(t, a, "D", "d")

	assert.Equal(t, 1, a.ForceCompletionOfGroup("A"))
	assert.Equal(t, 0, a.ForceCompletionOfGroup("A"))
	assert.Equal(t, 1, a.ForceDiscardingOfGroup("B"))
	assert.Equal(t, 1, out.Count())
	v, _ := out.Exchanges()[0].GetProperty(types.AggregatedCompletedByProperty)
	assert.Equal(t, types.CompletedByForce, v)

	assert.Equal(t, 2, a.ForceDiscardingOfAllGroups())
	assert.Equal(t, 0, a.ForceCompletionOfAllGroups())
	assert.Equal(t, 0, a.InProgressGroups())
	assert.Equal(t, int64(3), a.Statistics().Get().Discarded)
}

func TestConcurrentSameKeyMerges(t *testing.T) {
	for _, optimistic := range []bool{false, true} {
		t.Run(fmt.Sprintf("optimistic=%v", optimistic), func(t *testing.T) {
			out := &test.Collector{}
			a := newAggregator(t, &types.AggregateDefinition{
				Strategy:          GroupedBodyStrategy,
				CompletionSize:    100000,
				OptimisticLocking: optimistic,
				OptimisticLockRetryPolicy: &types.OptimisticLockRetryPolicy{
					RetryDelay:    time.Microsecond,
					RandomBackOff: true,
				},
			}, out)
			var wg sync.WaitGroup
			for g := 0; g < 20; g++ {
				wg.Add(1)
				go func(g int) {
					defer wg.Done()
					for i := 0; i < 50; i++ {
						assert.Nil(t, a.Process(context.Background(), test.NewExchange(g*1000+i, "id", "K")))
					}
				}(g)
			}
			wg.Wait()
			assert.Equal(t, 1, a.ForceCompletionOfAllGroups())
			require.Equal(t, 1, out.Count())
			ex := out.Exchanges()[0]
			assert.Equal(t, 1000, len(ex.Data.([]interface{})))
			assert.Equal(t, 1000, ex.IntProperty(types.AggregatedSizeProperty, 0))
		})
	}
}

type conflictingRepository struct {
	*MemoryAggregationRepository
}

func (r conflictingRepository) AddIfUnchanged(key string, oldExchange, newExchange *types.Exchange) error {
	return types.ErrConcurrentModification
}

func TestOptimisticLockingExhausted(t *testing.T) {
	a := newAggregator(t, &types.AggregateDefinition{
		CompletionSize:            10,
		OptimisticLocking:         true,
		Repository:                conflictingRepository{NewMemoryAggregationRepository()},
		OptimisticLockRetryPolicy: &types.OptimisticLockRetryPolicy{MaximumRetries: 3, RetryDelay: time.Millisecond},
	}, &test.Collector{})
	err := a.Process(context.Background(), test.NewExchange("a", "id", "A"))
	assert.True(t, errors.Is(err, types.ErrConcurrentModification))
	assert.Contains(t, err.Error(), "tried 3 times")

	_, err = NewAggregator(testConfig(), &types.AggregateDefinition{CorrelationExpression: el.Header("id"), Strategy: UseLatestStrategy,
		CompletionSize: 1, OptimisticLocking: true, Repository: plainRepository{}}, nil, nil, false)
	assert.True(t, errors.Is(err, types.ErrMissingConfiguration))
}

// flakyRepository fails the first conflicts optimistic writes.
type flakyRepository struct {
	*MemoryAggregationRepository
	conflicts int32
}

func (r *flakyRepository) AddIfUnchanged(key string, oldExchange, newExchange *types.Exchange) error {
	if atomic.AddInt32(&r.conflicts, -1) >= 0 {
		return types.ErrConcurrentModification
	}
	return r.MemoryAggregationRepository.AddIfUnchanged(key, oldExchange, newExchange)
}

func TestOptimisticLockingNewGroupCallback(t *testing.T) {
	out := &test.Collector{}
	var newGroups []string
	a := newAggregator(t, &types.AggregateDefinition{
		CompletionSize:            2,
		OptimisticLocking:         true,
		Repository:                &flakyRepository{MemoryAggregationRepository: NewMemoryAggregationRepository(), conflicts: 2},
		OptimisticLockRetryPolicy: &types.OptimisticLockRetryPolicy{MaximumRetries: 5, RetryDelay: time.Millisecond},
		OnNewGroup: func(key string, exchange *types.Exchange) {
			newGroups = append(newGroups, key)
		},
	}, out)
	send(t, a, "A", "a1")
	assert.Equal(t, []string{"A"}, newGroups)
	assert.Equal(t, 1, a.InProgressGroups())

	send(t, a, "A", "a2")
	require.Equal(t, 1, out.Count())
	assert.Equal(t, "a1+a2", out.Exchanges()[0].Data)
	assert.Equal(t, []string{"A"}, newGroups)

	send(t, a, "B", "b1", "b2")
	assert.Equal(t, []string{"A", "B"}, newGroups)
}

type plainRepository struct {
	types.AggregationRepository
}

func TestParallelProcessing(t *testing.T) {
	out := &test.Collector{}
	dispatcher := pool.NewPooledDispatcher(types.DefaultThreadPoolProfile())
	def := &types.AggregateDefinition{
		CorrelationExpression: el.Header("id"),
		Strategy:              StringJoinStrategy("+"),
		CompletionSize:        2,
		ParallelProcessing:    true,
	}
	a, err := NewAggregator(testConfig(), def, out, dispatcher, true)
	require.Nil(t, err)
	require.Nil(t, a.Start())
	for i := 0; i < 10; i++ {
		send(t, a, fmt.Sprintf("K%d", i), "1", "2")
	}
	test.WaitFor(t, time.Second, func() bool { return out.Count() == 10 })
	require.Nil(t, a.Stop())
	assert.True(t, dispatcher.Released())
}

func TestStop(t *testing.T) {
	t.Run("forceCompletionOnStop", func(t *testing.T) {
		out := &test.Collector{Delay: 10 * time.Millisecond}
		a, err := NewAggregator(testConfig(), &types.AggregateDefinition{CorrelationExpression: el.Header("id"),
			Strategy: UseLatestStrategy, CompletionSize: 10, ForceCompletionOnStop: true,
			ParallelProcessing: true}, out, pool.NewPooledDispatcher(types.DefaultThreadPoolProfile()), true)
		require.Nil(t, err)
		send(t, a, "A", "a")
		send(t, a, "B", "b")
		require.Nil(t, a.Stop())
		// in-flight completions finished before Stop returned
		assert.Equal(t, 2, out.Count())
		err = a.Process(context.Background(), test.NewExchange("c", "id", "C"))
		assert.True(t, errors.Is(err, types.ErrStopped))
		assert.Nil(t, a.Stop())
	})

	t.Run("discardOnStop", func(t *testing.T) {
		out := &test.Collector{}
		dispatcher := pool.NewInlineDispatcher()
		a, err := NewAggregator(testConfig(), &types.AggregateDefinition{CorrelationExpression: el.Header("id"),
			Strategy: UseLatestStrategy, CompletionSize: 10}, out, dispatcher, true)
		require.Nil(t, err)
		send(t, a, "A", "a")
		require.Nil(t, a.Stop())
		assert.Equal(t, 0, out.Count())
		assert.Equal(t, int64(1), a.Statistics().Get().Discarded)
		assert.NotNil(t, dispatcher.Submit(func() {}))
	})
}

func TestSyncOutputError(t *testing.T) {
	a := newAggregator(t, &types.AggregateDefinition{CompletionSize: 1}, test.Fail(test.ErrTest))
	err := a.Process(context.Background(), test.NewExchange("a", "id", "A"))
	assert.True(t, errors.Is(err, test.ErrTest))
}

type awareStrategy struct {
	types.AggregationStrategy
	completed int
	timedOut  int
}

func (s *awareStrategy) OnCompletion(exchange *types.Exchange) { s.completed++ }

func (s *awareStrategy) Timeout(exchange *types.Exchange, timeout time.Duration) { s.timedOut++ }

func TestAwareStrategies(t *testing.T) {
	strategy := &awareStrategy{AggregationStrategy: UseLatestStrategy}
	a, err := NewAggregator(testConfig(), &types.AggregateDefinition{CorrelationExpression: el.Header("id"),
		Strategy: strategy, CompletionSize: 2, CompletionTimeout: time.Hour}, &test.Collector{}, nil, false)
	require.Nil(t, err)
	send(t, a, "A", "1", "2")
	assert.Equal(t, 1, strategy.completed)

	send(t, a, "B", "1")
	// expire the group without waiting for the checker
	a.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	a.checkTimeouts()
	assert.Equal(t, 1, strategy.timedOut)
	assert.Equal(t, 2, strategy.completed)
}
