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

// Package aggregate implements the aggregator: exchanges are grouped by correlation key,
// merged by an aggregation strategy and sent downstream once a completion trigger fires.
//
// 聚合器按关联键对消息分组，通过聚合策略合并，满足完成条件后发送到下游。
//
// Completion triggers, checked in this order after every merge:
//
//   - the CamelAggregationCompleteCurrentGroup property, or the strategy used as predicate
//   - the completion predicate
//   - the completion size expression, then the completion size
//
// Timer triggers (timeout, interval) and the Force* operations complete groups in the background.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rulego/rulego-eip/api/types"
	"github.com/rulego/rulego-eip/api/types/metrics"
	"github.com/rulego/rulego-eip/components/base"
	"github.com/rulego/rulego-eip/utils/cache"
	"github.com/rulego/rulego-eip/utils/cast"
	"github.com/rulego/rulego-eip/utils/str"
)

const lockShards = 256

// DefaultCompletionTimeoutCheckerInterval 超时检查间隔
const DefaultCompletionTimeoutCheckerInterval = time.Second

var _ types.Service = (*Aggregator)(nil)

type timeoutEntry struct {
	deadline time.Time
	timeout  time.Duration
}

// Aggregator 聚合处理器
type Aggregator struct {
	base.GracefulShutdown

	def        types.AggregateDefinition
	output     types.Processor
	dispatcher types.Dispatcher
	ownsPool   bool
	async      bool
	logger     types.Logger

	repository types.AggregationRepository
	optimistic types.OptimisticLockingAggregationRepository
	retry      types.OptimisticLockRetryPolicy
	predicate  types.Predicate
	// predicateIsStrategy the strategy itself is used as completion predicate
	predicateIsStrategy bool

	locks      [lockShards]sync.Mutex
	closedKeys *cache.LRUCache

	timeoutMu sync.Mutex
	timeouts  map[string]timeoutEntry

	statistics *metrics.AggregateMetrics

	lifecycleMu sync.Mutex
	started     bool
	stopCh      chan struct{}
	timers      sync.WaitGroup
	now         func() time.Time
}

// NewAggregator creates an aggregator sending completed groups to output through dispatcher.
// A nil dispatcher completes groups on the calling goroutine. ownsDispatcher releases it on Stop.
func NewAggregator(config types.Config, def *types.AggregateDefinition, output types.Processor,
	dispatcher types.Dispatcher, ownsDispatcher bool) (*Aggregator, error) {
	if def.CorrelationExpression == nil {
		return nil, fmt.Errorf("aggregate: correlation expression: %w", types.ErrMissingConfiguration)
	}
	if def.Strategy == nil {
		return nil, fmt.Errorf("aggregate: aggregation strategy: %w", types.ErrMissingConfiguration)
	}
	a := &Aggregator{
		def:        *def,
		output:     output,
		dispatcher: dispatcher,
		ownsPool:   ownsDispatcher,
		async:      def.ParallelProcessing || def.ExecutorRef != "",
		logger:     types.NewLogger(config.Logger),
		repository: def.Repository,
		predicate:  def.CompletionPredicate,
		timeouts:   make(map[string]timeoutEntry),
		statistics: metrics.NewAggregateMetrics(),
		stopCh:     make(chan struct{}),
		now:        time.Now,
	}
	if a.predicate == nil {
		if p, ok := def.Strategy.(types.Predicate); ok {
			a.predicate = p
			a.predicateIsStrategy = true
		}
	}
	_, preCompletion := def.Strategy.(types.PreCompletionAwareStrategy)
	if a.predicate == nil && def.CompletionSize <= 0 && def.CompletionSizeExpression == nil &&
		def.CompletionTimeout <= 0 && def.CompletionTimeoutExpression == nil && def.CompletionInterval <= 0 &&
		!def.CompletionOnNewCorrelationGroup && !preCompletion {
		return nil, fmt.Errorf("aggregate: at least one completion trigger: %w", types.ErrMissingConfiguration)
	}
	if def.CompletionInterval > 0 && (def.CompletionTimeout > 0 || def.CompletionTimeoutExpression != nil) {
		return nil, fmt.Errorf("aggregate: completion interval and completion timeout cannot be used together: %w", types.ErrMissingConfiguration)
	}
	if a.repository == nil {
		a.repository = NewMemoryAggregationRepository()
	}
	if def.OptimisticLocking {
		repo, ok := a.repository.(types.OptimisticLockingAggregationRepository)
		if !ok {
			return nil, fmt.Errorf("aggregate: optimistic locking needs an optimistic locking repository: %w", types.ErrMissingConfiguration)
		}
		a.optimistic = repo
		a.retry = types.DefaultOptimisticLockRetryPolicy()
		if def.OptimisticLockRetryPolicy != nil {
			a.retry = *def.OptimisticLockRetryPolicy
		}
	}
	if def.CloseCorrelationKeyOnCompletion {
		a.closedKeys = cache.NewLRUCache(def.ClosedCorrelationKeyCacheSize, nil)
	}
	if a.def.CompletionTimeoutCheckerInterval <= 0 {
		a.def.CompletionTimeoutCheckerInterval = DefaultCompletionTimeoutCheckerInterval
	}
	a.InitGracefulShutdown(a.logger, config.ShutdownTimeout)
	return a, nil
}

// Statistics returns the live counters of the aggregator.
func (a *Aggregator) Statistics() *metrics.AggregateMetrics {
	return a.statistics
}

// Repository 返回聚合仓库
func (a *Aggregator) Repository() types.AggregationRepository {
	return a.repository
}

// InProgressGroups returns the number of groups not yet completed.
func (a *Aggregator) InProgressGroups() int {
	return len(a.repository.GetKeys())
}

// ClosedCorrelationKeys returns the number of remembered closed keys.
func (a *Aggregator) ClosedCorrelationKeys() int {
	if a.closedKeys == nil {
		return 0
	}
	return a.closedKeys.Len()
}

// ResetClosedCorrelationKeys forgets the closed keys, letting them aggregate again.
func (a *Aggregator) ResetClosedCorrelationKeys() {
	if a.closedKeys != nil {
		a.closedKeys.Clear()
	}
}

func (a *Aggregator) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &a.locks[h.Sum32()%lockShards]
}

func (a *Aggregator) Process(ctx context.Context, exchange *types.Exchange) error {
	if !a.BeginOperation() {
		return a.CheckShutdownSignal()
	}
	defer a.EndOperation()
	a.statistics.IncrementIn()

	if exchange.BoolFlag(types.AggregationCompleteAllGroups) {
		exchange.RemoveFlag(types.AggregationCompleteAllGroups)
		a.forceCompletion(ctx, "", types.CompletedByForce)
		return nil
	}
	key, err := a.correlationKey(exchange)
	if err != nil {
		if a.def.IgnoreInvalidCorrelationKeys {
			a.logger.Printf("aggregate: invalid correlation key, exchange %s ignored: %v", exchange.Id, err)
			return nil
		}
		return err
	}
	if a.closedKeys != nil && a.closedKeys.Has(key) {
		return fmt.Errorf("%w: %s", types.ErrClosedCorrelationKey, key)
	}
	completeAllInclusive := exchange.BoolFlag(types.AggregationCompleteAllGroupsInclusive)
	if completeAllInclusive {
		exchange.RemoveFlag(types.AggregationCompleteAllGroupsInclusive)
	}
	if a.def.CompletionOnNewCorrelationGroup && a.repository.Get(key) == nil {
		a.forceCompletion(ctx, key, types.CompletedByForce)
	}

	var completed []*types.Exchange
	if a.optimistic != nil {
		completed, err = a.aggregateOptimistic(key, exchange)
	} else {
		lock := a.lockFor(key)
		lock.Lock()
		completed, err = a.doAggregation(key, exchange.CorrelatedCopy())
		lock.Unlock()
	}
	errs := []error{err}
	for _, c := range completed {
		if submitErr := a.submit(ctx, c); submitErr != nil {
			errs = append(errs, submitErr)
		}
	}
	if completeAllInclusive {
		a.forceCompletion(ctx, "", types.CompletedByForce)
	}
	return errors.Join(errs...)
}

func (a *Aggregator) correlationKey(exchange *types.Exchange) (string, error) {
	v, err := a.def.CorrelationExpression.Evaluate(exchange)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrInvalidCorrelationKey, err)
	}
	key := str.ToString(v)
	if key == "" {
		return "", types.ErrInvalidCorrelationKey
	}
	return key, nil
}

// aggregateOptimistic retries the merge without lock until the repository accepts it.
// Groups completed by a failed attempt are kept.
func (a *Aggregator) aggregateOptimistic(key string, exchange *types.Exchange) ([]*types.Exchange, error) {
	var all []*types.Exchange
	for attempt := 1; ; attempt++ {
		completed, err := a.doAggregation(key, exchange.CorrelatedCopy())
		all = append(all, completed...)
		if err == nil {
			return all, nil
		}
		if !errors.Is(err, types.ErrConcurrentModification) {
			return all, err
		}
		if !a.retry.ShouldRetry(attempt) {
			return all, fmt.Errorf("exhausted optimistic locking retry attempts, tried %d times: %w", attempt, types.ErrConcurrentModification)
		}
		time.Sleep(a.retry.Delay(attempt))
	}
}

// doAggregation merges newExchange into the group of key. Runs under the key lock,
// or without lock in optimistic mode.
func (a *Aggregator) doAggregation(key string, newExchange *types.Exchange) ([]*types.Exchange, error) {
	var completed []*types.Exchange
	original := a.repository.Get(key)
	oldExchange := original
	size := 1
	newGroup := original == nil
	if oldExchange != nil {
		if a.optimistic != nil {
			// strategies may update the old exchange in place
			oldExchange = original.Copy()
		}
		size = oldExchange.IntProperty(types.AggregatedSizeProperty, 0) + 1
	} else if a.def.OnNewGroup != nil && a.optimistic == nil {
		a.def.OnNewGroup(key, newExchange)
	}
	// 乐观锁模式下，新分组回调只在本次尝试提交成功后触发一次
	committed := func() {
		if newGroup && a.optimistic != nil && a.def.OnNewGroup != nil {
			a.def.OnNewGroup(key, newExchange)
		}
	}

	completedBy := ""
	var err error
	if strategy, ok := a.def.Strategy.(types.PreCompletionAwareStrategy); ok {
		if oldExchange != nil && strategy.PreComplete(oldExchange, newExchange) {
			answer, completeErr := a.onCompletion(key, original, oldExchange, types.CompletedByStrategy, false)
			if completeErr != nil {
				return nil, completeErr
			}
			if answer != nil {
				completed = append(completed, answer)
			}
			original, oldExchange, size = nil, nil, 1
		}
	} else if a.def.EagerCheckCompletion {
		newExchange.SetProperty(types.AggregatedSizeProperty, size)
		completedBy, err = a.isCompleted(newExchange)
		newExchange.RemoveProperty(types.AggregatedSizeProperty)
		if err != nil {
			return nil, err
		}
	}

	answer, err := a.def.Strategy.Aggregate(oldExchange, newExchange)
	if err == nil && answer == nil {
		err = types.ErrNilAggregation
	}
	if err != nil {
		return completed, a.onAggregationFailure(key, original, newExchange, err)
	}
	answer.SetProperty(types.AggregatedSizeProperty, size)

	if _, pre := a.def.Strategy.(types.PreCompletionAwareStrategy); !pre && !a.def.EagerCheckCompletion {
		if completedBy, err = a.isCompleted(answer); err != nil {
			return completed, err
		}
	}
	if completedBy == "" {
		if a.optimistic != nil {
			if err = a.optimistic.AddIfUnchanged(key, original, answer); err != nil {
				if aware, ok := a.def.Strategy.(types.OptimisticLockFailureAwareStrategy); ok {
					aware.OnOptimisticLockFailure(oldExchange, newExchange)
				}
				return completed, err
			}
			committed()
		} else {
			a.repository.Add(key, answer)
		}
		a.trackTimeout(key, newExchange)
		return completed, nil
	}
	answer, err = a.onCompletion(key, original, answer, completedBy, false)
	if err != nil {
		return completed, err
	}
	committed()
	if answer != nil {
		completed = append(completed, answer)
	}
	return completed, nil
}

func (a *Aggregator) onAggregationFailure(key string, original, newExchange *types.Exchange, err error) error {
	if !a.def.DiscardOnAggregationFailure {
		return fmt.Errorf("%w: exchange %s: %w", types.ErrAggregationFailed, newExchange.Id, err)
	}
	a.logger.Printf("aggregate: aggregation failed, discarding group %s: %v", key, err)
	if original != nil {
		if removeErr := a.remove(key, original); removeErr != nil {
			return removeErr
		}
	}
	a.untrackTimeout(key)
	a.statistics.IncrementDiscarded()
	return nil
}

// isCompleted returns the trigger that completes exchange, or "".
func (a *Aggregator) isCompleted(exchange *types.Exchange) (string, error) {
	if exchange.BoolFlag(types.AggregationCompleteCurrentGroup) {
		exchange.RemoveFlag(types.AggregationCompleteCurrentGroup)
		return types.CompletedByStrategy, nil
	}
	if a.predicate != nil {
		ok, err := a.predicate.Matches(exchange)
		if err != nil {
			return "", err
		}
		if ok {
			if a.predicateIsStrategy {
				return types.CompletedByStrategy, nil
			}
			return types.CompletedByPredicate, nil
		}
	}
	size := exchange.IntProperty(types.AggregatedSizeProperty, 1)
	sizeChecked := false
	if a.def.CompletionSizeExpression != nil {
		v, err := a.def.CompletionSizeExpression.Evaluate(exchange)
		if err != nil {
			return "", err
		}
		if v != nil {
			if limit, castErr := cast.ToIntE(v); castErr == nil && limit > 0 {
				sizeChecked = true
				if size >= limit {
					return types.CompletedBySize, nil
				}
			}
		}
	}
	if !sizeChecked && a.def.CompletionSize > 0 && size >= a.def.CompletionSize {
		return types.CompletedBySize, nil
	}
	return "", nil
}

func (a *Aggregator) trackTimeout(key string, exchange *types.Exchange) {
	timeout := a.def.CompletionTimeout
	if a.def.CompletionTimeoutExpression != nil {
		if v, err := a.def.CompletionTimeoutExpression.Evaluate(exchange); err == nil && v != nil {
			if d, castErr := cast.ToMillisDurationE(v); castErr == nil && d > 0 {
				timeout = d
			}
		}
	}
	if timeout <= 0 {
		return
	}
	a.timeoutMu.Lock()
	a.timeouts[key] = timeoutEntry{deadline: a.now().Add(timeout), timeout: timeout}
	a.timeoutMu.Unlock()
}

func (a *Aggregator) untrackTimeout(key string) {
	a.timeoutMu.Lock()
	delete(a.timeouts, key)
	a.timeoutMu.Unlock()
}

func (a *Aggregator) remove(key string, exchange *types.Exchange) error {
	if a.optimistic != nil {
		return a.optimistic.RemoveIfUnchanged(key, exchange)
	}
	a.repository.Remove(key, exchange)
	return nil
}

// onCompletion removes the group and marks the aggregated exchange. It returns nil
// when the group is discarded.
func (a *Aggregator) onCompletion(key string, original, aggregated *types.Exchange, completedBy string, fromTimeout bool) (*types.Exchange, error) {
	if original != nil {
		if err := a.remove(key, original); err != nil {
			return nil, err
		}
	}
	aggregated.SetProperty(types.AggregatedCorrelationKeyProperty, key)
	aggregated.SetProperty(types.AggregatedCompletedByProperty, completedBy)
	a.untrackTimeout(key)
	if a.closedKeys != nil {
		a.closedKeys.Set(key, struct{}{})
	}
	if fromTimeout {
		if aware, ok := a.def.Strategy.(types.TimeoutAwareStrategy); ok {
			timeout := a.def.CompletionTimeout
			if v, ok := aggregated.GetProperty(types.AggregatedTimeoutProperty); ok {
				timeout, _ = v.(time.Duration)
			}
			aware.Timeout(aggregated, timeout)
		}
		if a.def.DiscardOnCompletionTimeout {
			a.statistics.IncrementDiscarded()
			return nil, nil
		}
	}
	if aware, ok := a.def.Strategy.(types.CompletionAwareStrategy); ok {
		aware.OnCompletion(aggregated)
	}
	a.statistics.IncrementCompleted(completedBy)
	return aggregated, nil
}

// submit sends a completed exchange downstream. Synchronous aggregators return the
// error of the output; asynchronous ones log it.
func (a *Aggregator) submit(ctx context.Context, exchange *types.Exchange) error {
	if a.output == nil {
		return nil
	}
	a.IncrementActiveOperations()
	if !a.async {
		var processErr error
		err := base.Submit(a.dispatcher, func() {
			defer a.EndOperation()
			processErr = base.SafeProcess(ctx, a.output, exchange)
		})
		if err != nil {
			a.EndOperation()
			return err
		}
		return processErr
	}
	shutdownCtx := a.GetShutdownContext()
	err := base.Submit(a.dispatcher, func() {
		defer a.EndOperation()
		if processErr := base.SafeProcess(shutdownCtx, a.output, exchange); processErr != nil {
			a.logger.Printf("aggregate: processing completed group %s failed: %v",
				str.ToString(exchange.Properties()[types.AggregatedCorrelationKeyProperty]), processErr)
		}
	})
	if err != nil {
		a.EndOperation()
		a.logger.Printf("aggregate: submitting completed exchange %s failed: %v", exchange.Id, err)
		return err
	}
	return nil
}

// ForceCompletionOfAllGroups completes every group in progress and returns their number.
func (a *Aggregator) ForceCompletionOfAllGroups() int {
	return a.forceCompletion(a.GetShutdownContext(), "", types.CompletedByForce)
}

// ForceCompletionOfGroup completes the group of key. It returns 1 when the group existed.
func (a *Aggregator) ForceCompletionOfGroup(key string) int {
	ctx := a.GetShutdownContext()
	ex := a.completeGroup(key, types.CompletedByForce, false)
	if ex == nil {
		return 0
	}
	_ = a.submit(ctx, ex)
	return 1
}

// forceCompletion completes every group except exclude.
func (a *Aggregator) forceCompletion(ctx context.Context, exclude, completedBy string) int {
	total := 0
	for _, key := range a.repository.GetKeys() {
		if key == exclude {
			continue
		}
		if ex := a.completeGroup(key, completedBy, false); ex != nil {
			total++
			if err := a.submit(ctx, ex); err != nil {
				a.logger.Printf("aggregate: completing group %s by %s failed: %v", key, completedBy, err)
			}
		}
	}
	return total
}

// completeGroup completes the stored group of key under its lock.
func (a *Aggregator) completeGroup(key, completedBy string, fromTimeout bool) *types.Exchange {
	lock := a.lockFor(key)
	lock.Lock()
	defer lock.Unlock()
	for {
		ex := a.repository.Get(key)
		if ex == nil {
			return nil
		}
		answer, err := a.onCompletion(key, ex, ex, completedBy, fromTimeout)
		if errors.Is(err, types.ErrConcurrentModification) {
			continue
		}
		if err != nil {
			a.logger.Printf("aggregate: completing group %s failed: %v", key, err)
			return nil
		}
		return answer
	}
}

// ForceDiscardingOfAllGroups drops every group in progress and returns their number.
func (a *Aggregator) ForceDiscardingOfAllGroups() int {
	total := 0
	for _, key := range a.repository.GetKeys() {
		total += a.ForceDiscardingOfGroup(key)
	}
	return total
}

// ForceDiscardingOfGroup drops the group of key. It returns 1 when the group existed.
func (a *Aggregator) ForceDiscardingOfGroup(key string) int {
	lock := a.lockFor(key)
	lock.Lock()
	defer lock.Unlock()
	for {
		ex := a.repository.Get(key)
		if ex == nil {
			return 0
		}
		if err := a.remove(key, ex); err != nil {
			continue
		}
		a.untrackTimeout(key)
		a.statistics.IncrementDiscarded()
		return 1
	}
}

// Start launches the timeout checker and the completion interval timer.
func (a *Aggregator) Start() error {
	a.lifecycleMu.Lock()
	defer a.lifecycleMu.Unlock()
	if a.started {
		return nil
	}
	a.started = true
	if a.def.CompletionTimeout > 0 || a.def.CompletionTimeoutExpression != nil {
		a.runTicker(a.def.CompletionTimeoutCheckerInterval, a.checkTimeouts)
	}
	if a.def.CompletionInterval > 0 {
		a.runTicker(a.def.CompletionInterval, func() {
			a.forceCompletion(a.GetShutdownContext(), "", types.CompletedByInterval)
		})
	}
	return nil
}

func (a *Aggregator) runTicker(interval time.Duration, fn func()) {
	a.timers.Add(1)
	go func() {
		defer a.timers.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-a.stopCh:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}

// checkTimeouts completes the groups whose inactivity deadline elapsed.
func (a *Aggregator) checkTimeouts() {
	now := a.now()
	var expired []string
	a.timeoutMu.Lock()
	for key, entry := range a.timeouts {
		if !now.Before(entry.deadline) {
			expired = append(expired, key)
		}
	}
	a.timeoutMu.Unlock()

	ctx := a.GetShutdownContext()
	for _, key := range expired {
		if ex := a.completeExpired(key, now); ex != nil {
			if err := a.submit(ctx, ex); err != nil {
				a.logger.Printf("aggregate: completing group %s by timeout failed: %v", key, err)
			}
		}
	}
}

func (a *Aggregator) completeExpired(key string, now time.Time) *types.Exchange {
	lock := a.lockFor(key)
	lock.Lock()
	defer lock.Unlock()
	a.timeoutMu.Lock()
	entry, ok := a.timeouts[key]
	a.timeoutMu.Unlock()
	// a merge may have refreshed the deadline since the scan
	if !ok || now.Before(entry.deadline) {
		return nil
	}
	for {
		ex := a.repository.Get(key)
		if ex == nil {
			a.untrackTimeout(key)
			return nil
		}
		ex.SetProperty(types.AggregatedTimeoutProperty, entry.timeout)
		answer, err := a.onCompletion(key, ex, ex, types.CompletedByTimeout, true)
		if errors.Is(err, types.ErrConcurrentModification) {
			continue
		}
		if err != nil {
			a.logger.Printf("aggregate: completing group %s by timeout failed: %v", key, err)
			return nil
		}
		return answer
	}
}

// Stop stops the timers, then completes (ForceCompletionOnStop) or discards the groups in
// progress, waits for in-flight completions and finally releases an owned dispatcher.
func (a *Aggregator) Stop() error {
	a.lifecycleMu.Lock()
	select {
	case <-a.stopCh:
		a.lifecycleMu.Unlock()
		return nil
	default:
		close(a.stopCh)
	}
	a.lifecycleMu.Unlock()
	a.timers.Wait()

	a.GracefulStop(func() {
		timeout := a.ShutdownTimeout()
		// merges already running land in the repository first
		a.WaitForActiveOperations(timeout)
		if a.def.ForceCompletionOnStop {
			a.forceCompletion(a.GetShutdownContext(), "", types.CompletedByForce)
			if !a.WaitForActiveOperations(timeout) {
				a.ForceStop()
			}
		} else if n := a.ForceDiscardingOfAllGroups(); n > 0 {
			a.logger.Printf("aggregate: %d groups discarded on stop", n)
		}
	})
	if a.ownsPool && a.dispatcher != nil {
		a.dispatcher.Release()
	}
	return nil
}
