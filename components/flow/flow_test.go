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

var errOther = errors.New("other error")

func TestPipeline(t *testing.T) {
	collector := &test.Collector{}
	p := NewPipeline(test.Upper, nil, collector)
	assert.Equal(t, 2, len(p.Processors()))

	ex := test.NewExchange("aa")
	require.Nil(t, p.Process(context.Background(), ex))
	assert.Equal(t, []interface{}{"AA"}, collector.Bodies())

	t.Run("stopAtFirstError", func(t *testing.T) {
		collector.Reset()
		p := NewPipeline(test.Fail(test.ErrTest), collector)
		err := p.Process(context.Background(), test.NewExchange("aa"))
		assert.True(t, errors.Is(err, test.ErrTest))
		assert.Equal(t, 0, collector.Count())
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := NewPipeline(collector).Process(ctx, test.NewExchange("aa"))
		assert.True(t, errors.Is(err, context.Canceled))
	})
}

func TestFilter(t *testing.T) {
	collector := &test.Collector{}
	f := NewFilter(el.MustSimplePredicate("${header.kind == 'a'}"), collector)

	ex := test.NewExchange("x", "kind", "a")
	require.Nil(t, f.Process(context.Background(), ex))
	v, _ := ex.GetProperty(types.FilterMatchedProperty)
	assert.Equal(t, true, v)

	ex = test.NewExchange("y", "kind", "b")
	require.Nil(t, f.Process(context.Background(), ex))
	v, _ = ex.GetProperty(types.FilterMatchedProperty)
	assert.Equal(t, false, v)

	assert.Equal(t, []interface{}{"x"}, collector.Bodies())
}

func TestTry(t *testing.T) {
	t.Run("catchMatching", func(t *testing.T) {
		caught := &test.Collector{}
		other := &test.Collector{}
		finally := &test.Collector{}
		try := NewTry(test.Fail(test.ErrTest), []CatchClause{
			{Errors: []error{errOther}, Processor: other},
			{Errors: []error{test.ErrTest}, Processor: caught},
		}, finally)
		ex := test.NewExchange("aa")
		assert.Nil(t, try.Process(context.Background(), ex))
		assert.Equal(t, 1, caught.Count())
		assert.Equal(t, 0, other.Count())
		assert.Equal(t, 1, finally.Count())
		v, ok := ex.GetProperty(types.ExceptionCaughtProperty)
		assert.True(t, ok)
		assert.True(t, errors.Is(v.(error), test.ErrTest))
	})

	t.Run("noMatch", func(t *testing.T) {
		finally := &test.Collector{}
		try := NewTry(test.Fail(test.ErrTest), []CatchClause{{Errors: []error{errOther}}}, finally)
		err := try.Process(context.Background(), test.NewExchange("aa"))
		assert.True(t, errors.Is(err, test.ErrTest))
		assert.Equal(t, 1, finally.Count())
	})

	t.Run("onWhen", func(t *testing.T) {
		try := NewTry(test.Fail(test.ErrTest), []CatchClause{{OnWhen: el.MustSimplePredicate("${header.retry == 'no'}")}}, nil)
		assert.Nil(t, try.Process(context.Background(), test.NewExchange("aa", "retry", "no")))
		assert.NotNil(t, try.Process(context.Background(), test.NewExchange("aa", "retry", "yes")))
	})

	t.Run("finallyErrorWins", func(t *testing.T) {
		try := NewTry(test.Upper, nil, test.Fail(errOther))
		err := try.Process(context.Background(), test.NewExchange("aa"))
		assert.True(t, errors.Is(err, errOther))
	})

	t.Run("catchFails", func(t *testing.T) {
		try := NewTry(test.Fail(test.ErrTest), []CatchClause{{Processor: test.Fail(errOther)}}, nil)
		err := try.Process(context.Background(), test.NewExchange("aa"))
		assert.True(t, errors.Is(err, errOther))
	})
}

func TestCircuitBreaker(t *testing.T) {
	var fail int32 = 1
	output := types.ProcessorFunc(func(ctx context.Context, exchange *types.Exchange) error {
		if atomic.LoadInt32(&fail) == 1 {
			return test.ErrTest
		}
		return nil
	})
	cb := NewCircuitBreaker(output, nil, 2, time.Minute)
	now := time.Now()
	cb.now = func() time.Time { return now }

	assert.True(t, errors.Is(cb.Process(context.Background(), test.NewExchange("a")), test.ErrTest))
	assert.Equal(t, BreakerClosed, cb.State())
	assert.True(t, errors.Is(cb.Process(context.Background(), test.NewExchange("a")), test.ErrTest))
	assert.Equal(t, BreakerOpen, cb.State())

	ex := test.NewExchange("a")
	assert.True(t, errors.Is(cb.Process(context.Background(), ex), types.ErrCircuitOpen))
	v, _ := ex.GetProperty(types.CircuitBreakerStateProperty)
	assert.Equal(t, "open", v)

	// half open trial fails and reopens
	now = now.Add(2 * time.Minute)
	assert.True(t, errors.Is(cb.Process(context.Background(), test.NewExchange("a")), test.ErrTest))
	assert.Equal(t, BreakerOpen, cb.State())

	// half open trial succeeds and closes
	now = now.Add(2 * time.Minute)
	atomic.StoreInt32(&fail, 0)
	assert.Nil(t, cb.Process(context.Background(), test.NewExchange("a")))
	assert.Equal(t, BreakerClosed, cb.State())
}

func TestCircuitBreakerFallback(t *testing.T) {
	fallback := &test.Collector{}
	cb := NewCircuitBreaker(test.Fail(test.ErrTest), fallback, 1, time.Minute)
	assert.Nil(t, cb.Process(context.Background(), test.NewExchange("a")))
	assert.Equal(t, BreakerOpen, cb.State())
	ex := test.NewExchange("b")
	assert.Nil(t, cb.Process(context.Background(), ex))
	assert.Equal(t, 2, fallback.Count())
	v, _ := ex.GetProperty(types.ExceptionCaughtProperty)
	assert.True(t, errors.Is(v.(error), types.ErrCircuitOpen))
}

func TestMulticast(t *testing.T) {
	concat := types.AggregationStrategyFunc(func(oldExchange, newExchange *types.Exchange) (*types.Exchange, error) {
		if oldExchange == nil {
			return newExchange, nil
		}
		oldExchange.Data = oldExchange.Data.(string) + "," + newExchange.Data.(string)
		return oldExchange, nil
	})
	suffix := func(s string) types.Processor {
		return types.ProcessorFunc(func(ctx context.Context, exchange *types.Exchange) error {
			exchange.Data = exchange.Data.(string) + s
			return nil
		})
	}

	t.Run("sequential", func(t *testing.T) {
		m := NewMulticast([]types.Processor{suffix("1"), suffix("2")}, nil, false, false, concat)
		ex := test.NewExchange("a")
		require.Nil(t, m.Process(context.Background(), ex))
		assert.Equal(t, "a1,a2", ex.Data)
	})

	t.Run("parallel", func(t *testing.T) {
		dispatcher := pool.NewPooledDispatcher(types.DefaultThreadPoolProfile())
		m := NewMulticast([]types.Processor{suffix("1"), suffix("2"), suffix("3")}, dispatcher, true, false, concat)
		ex := test.NewExchange("a")
		require.Nil(t, m.Process(context.Background(), ex))
		// merged in branch order regardless of completion order
		assert.Equal(t, "a1,a2,a3", ex.Data)
		require.Nil(t, m.Stop())
		assert.True(t, dispatcher.Released())
	})

	t.Run("copies", func(t *testing.T) {
		c1, c2 := &test.Collector{}, &test.Collector{}
		m := NewMulticast([]types.Processor{c1, c2}, nil, false, false, nil)
		ex := test.NewExchange("a")
		require.Nil(t, m.Process(context.Background(), ex))
		got := c2.Exchanges()[0]
		assert.NotEqual(t, ex.Id, got.Id)
		assert.Equal(t, 1, got.IntProperty(types.MulticastIndexProperty, -1))
		v, _ := got.GetProperty(types.CorrelationIdProperty)
		assert.Equal(t, ex.Id, v)
	})

	t.Run("stopOnException", func(t *testing.T) {
		after := &test.Collector{}
		m := NewMulticast([]types.Processor{test.Fail(test.ErrTest), after}, nil, false, true, nil)
		err := m.Process(context.Background(), test.NewExchange("a"))
		assert.True(t, errors.Is(err, test.ErrTest))
		assert.Equal(t, 0, after.Count())

		after.Reset()
		m = NewMulticast([]types.Processor{test.Fail(test.ErrTest), after}, nil, false, false, nil)
		err = m.Process(context.Background(), test.NewExchange("a"))
		assert.True(t, errors.Is(err, test.ErrTest))
		assert.Equal(t, 1, after.Count())
	})

	t.Run("parallelPanic", func(t *testing.T) {
		panicking := types.ProcessorFunc(func(ctx context.Context, exchange *types.Exchange) error {
			panic("boom")
		})
		m := NewMulticast([]types.Processor{panicking}, pool.NewInlineDispatcher(), true, false, nil)
		assert.NotNil(t, m.Process(context.Background(), test.NewExchange("a")))
	})
}

func TestDelay(t *testing.T) {
	t.Run("fixed", func(t *testing.T) {
		d := NewDelay(20*time.Millisecond, nil, 0)
		start := time.Now()
		require.Nil(t, d.Process(context.Background(), test.NewExchange("a")))
		assert.True(t, time.Since(start) >= 20*time.Millisecond)
	})

	t.Run("expression", func(t *testing.T) {
		d := NewDelay(time.Hour, el.Header("delay"), 0)
		start := time.Now()
		require.Nil(t, d.Process(context.Background(), test.NewExchange("a", "delay", "10")))
		assert.True(t, time.Since(start) < time.Second)
	})

	t.Run("cancel", func(t *testing.T) {
		d := NewDelay(time.Hour, nil, 0)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		err := d.Process(ctx, test.NewExchange("a"))
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
		assert.Equal(t, 0, d.Pending())
	})

	t.Run("maxPending", func(t *testing.T) {
		d := NewDelay(time.Hour, nil, 1)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			_ = d.Process(ctx, test.NewExchange("a"))
			close(done)
		}()
		test.WaitFor(t, time.Second, func() bool { return d.Pending() == 1 })
		err := d.Process(context.Background(), test.NewExchange("b"))
		assert.True(t, errors.Is(err, types.ErrCapacity))
		cancel()
		<-done
	})
}

func TestPipelineRouteStop(t *testing.T) {
	collector := &test.Collector{}
	stop := types.ProcessorFunc(func(ctx context.Context, exchange *types.Exchange) error {
		exchange.SetProperty(types.RouteStopProperty, true)
		return nil
	})
	require.Nil(t, NewPipeline(stop, collector).Process(context.Background(), test.NewExchange("a")))
	assert.Equal(t, 0, collector.Count())
}
