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

package dynamic

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rulego/rulego-eip/api/types"
	"github.com/rulego/rulego-eip/node_pool"
	"github.com/rulego/rulego-eip/test"
	"github.com/rulego/rulego-eip/utils/el"
	"github.com/rulego/rulego-eip/utils/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConfig(endpoints *node_pool.NodePool) types.Config {
	return types.NewConfig(types.WithLogger(types.DiscardLogger()), types.WithEndpointRegistry(endpoints))
}

func TestSplitTarget(t *testing.T) {
	tests := []struct {
		uri  string
		want []string
	}{
		{"direct:a", []string{"direct:a"}},
		{"direct:+${header.x}", []string{"direct:", "${header.x}"}},
		{"RAW(a+b)+c", []string{"RAW(a+b)", "c"}},
		{"RAW(a(b+c)d)+e", []string{"RAW(a(b+c)d)", "e"}},
		{"RAW{x+y}+z", []string{"RAW{x+y}", "z"}},
		{"a++b", []string{"a", "b"}},
		{"http://host?p=RAW(1+2)", []string{"http://host?p=RAW(1+2)"}},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitTarget(tt.uri))
		})
	}
}

func TestNewTargetExpression(t *testing.T) {
	config := types.NewConfig()
	ex := test.NewExchange("x", "queue", "orders", "target", "direct:audit")

	e, err := NewTargetExpression(config, "direct:+${header.queue}")
	require.NoError(t, err)
	v, err := e.Evaluate(ex)
	require.NoError(t, err)
	assert.Equal(t, "direct:orders", v)

	e, err = NewTargetExpression(config, "language:header:target")
	require.NoError(t, err)
	v, err = e.Evaluate(ex)
	require.NoError(t, err)
	assert.Equal(t, "direct:audit", v)

	e, err = NewTargetExpression(config, "RAW(a+b)+c")
	require.NoError(t, err)
	v, err = e.Evaluate(ex)
	require.NoError(t, err)
	assert.Equal(t, "RAW(a+b)c", v)

	_, err = NewTargetExpression(config, "language:cobol:x")
	assert.True(t, errors.Is(err, el.ErrUnknownLanguage))

	_, err = NewTargetExpression(config, "")
	assert.True(t, errors.Is(err, types.ErrMissingConfiguration))
}

func TestToDynamic(t *testing.T) {
	endpoints := node_pool.NewNodePool(types.NewConfig())
	orders, audit := &test.Collector{}, &test.Collector{}
	require.NoError(t, endpoints.RegisterEndpoint("direct:orders", orders))
	require.NoError(t, endpoints.RegisterEndpoint("direct:audit", audit))

	to, err := NewToDynamic(newConfig(endpoints), "direct:${header.queue}", types.InOut, 0, false)
	require.NoError(t, err)

	ex := test.NewExchange("a", "queue", "orders")
	require.NoError(t, to.Process(context.Background(), ex))
	v, _ := ex.GetProperty(types.ToEndpointProperty)
	assert.Equal(t, "direct:orders", v)
	require.NoError(t, to.Process(context.Background(), test.NewExchange("b", "queue", "audit")))
	require.NoError(t, to.Process(context.Background(), test.NewExchange("c", "queue", "orders")))

	assert.Equal(t, []interface{}{"a", "c"}, orders.Bodies())
	assert.Equal(t, []interface{}{"b"}, audit.Bodies())
	assert.Equal(t, 2, to.CachedEndpoints())

	t.Run("unknownEndpoint", func(t *testing.T) {
		err := to.Process(context.Background(), test.NewExchange("d", "queue", "missing"))
		assert.True(t, errors.Is(err, types.ErrNoSuchEndpoint))
		assert.Equal(t, 2, to.CachedEndpoints())
	})

	t.Run("ignoreInvalidEndpoint", func(t *testing.T) {
		lenient, err := NewToDynamic(newConfig(endpoints), "direct:${header.queue}", types.InOut, -1, true)
		require.NoError(t, err)
		assert.NoError(t, lenient.Process(context.Background(), test.NewExchange("d", "queue", "missing")))
		assert.Equal(t, 0, lenient.CachedEndpoints())
	})

	t.Run("pattern", func(t *testing.T) {
		var seen types.ExchangePattern
		require.NoError(t, endpoints.RegisterEndpoint("direct:pattern", types.ProcessorFunc(func(ctx context.Context, exchange *types.Exchange) error {
			seen = exchange.Pattern
			return nil
		})))
		inOnly, err := NewToDynamic(newConfig(endpoints), "direct:pattern", types.InOnly, 0, false)
		require.NoError(t, err)
		ex := test.NewExchange("p")
		require.NoError(t, inOnly.Process(context.Background(), ex))
		assert.Equal(t, types.InOnly, seen)
		assert.Equal(t, types.InOut, ex.Pattern)
	})

	t.Run("noRegistry", func(t *testing.T) {
		_, err := NewToDynamic(types.NewConfig(), "direct:a", types.InOut, 0, false)
		assert.True(t, errors.Is(err, types.ErrMissingConfiguration))
	})
}

func TestWireTap(t *testing.T) {
	endpoints := node_pool.NewNodePool(types.NewConfig())
	tap := &test.Collector{}
	require.NoError(t, endpoints.RegisterEndpoint("direct:tap", tap))
	config := newConfig(endpoints)

	send, err := NewToDynamic(config, "direct:tap", types.InOnly, 0, false)
	require.NoError(t, err)

	t.Run("copy", func(t *testing.T) {
		tap.Reset()
		dispatcher := pool.NewPooledDispatcher(types.ThreadPoolProfile{Id: "tap", MaxPoolSize: 2})
		w := NewWireTap(config, send, true, types.ProcessorFunc(func(ctx context.Context, exchange *types.Exchange) error {
			exchange.Metadata.PutValue("tapped", "true")
			return nil
		}), dispatcher, true)
		require.NoError(t, w.Start())

		ex := test.NewExchange("payload")
		require.NoError(t, w.Process(context.Background(), ex))
		test.WaitFor(t, time.Second, func() bool { return tap.Count() == 1 })

		tapped := tap.Exchanges()[0]
		assert.NotEqual(t, ex.Id, tapped.Id)
		assert.Equal(t, types.InOnly, tapped.Pattern)
		assert.Equal(t, "payload", tapped.Data)
		correlationId, _ := tapped.GetProperty(types.CorrelationIdProperty)
		assert.Equal(t, ex.Id, correlationId)
		assert.False(t, ex.Metadata.Has("tapped"))
		assert.Equal(t, types.InOut, ex.Pattern)

		require.NoError(t, w.Stop())
		assert.True(t, dispatcher.Released())
		assert.Error(t, w.Process(context.Background(), test.NewExchange("late")))
	})

	t.Run("shared", func(t *testing.T) {
		tap.Reset()
		w := NewWireTap(config, send, false, nil, pool.NewInlineDispatcher(), true)
		ex := test.NewExchange("payload", "k", "v")
		require.NoError(t, w.Process(context.Background(), ex))
		require.Equal(t, 1, tap.Count())
		tapped := tap.Exchanges()[0]
		tapped.Metadata.PutValue("k", "changed")
		assert.Equal(t, "changed", ex.Metadata.GetValue("k"))
		assert.Equal(t, types.InOut, ex.Pattern)
		require.NoError(t, w.Stop())
	})

	t.Run("onPrepareError", func(t *testing.T) {
		tap.Reset()
		w := NewWireTap(config, send, true, test.Fail(test.ErrTest), pool.NewInlineDispatcher(), true)
		err := w.Process(context.Background(), test.NewExchange("payload"))
		assert.True(t, errors.Is(err, test.ErrTest))
		assert.Equal(t, 0, tap.Count())
		assert.Equal(t, int64(0), w.GetActiveOperations())
	})

	t.Run("sendErrorIsNotReturned", func(t *testing.T) {
		var calls int32
		require.NoError(t, endpoints.RegisterEndpoint("direct:broken", types.ProcessorFunc(func(ctx context.Context, exchange *types.Exchange) error {
			atomic.AddInt32(&calls, 1)
			return test.ErrTest
		})))
		broken, err := NewToDynamic(config, "direct:broken", types.InOnly, 0, false)
		require.NoError(t, err)
		w := NewWireTap(config, broken, true, nil, pool.NewInlineDispatcher(), true)
		assert.NoError(t, w.Process(context.Background(), test.NewExchange("payload")))
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})
}
