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

// Package test holds the helpers shared by the tests of the module.
package test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rulego/rulego-eip/api/types"
	"github.com/rulego/rulego-eip/components/base"
	"github.com/stretchr/testify/require"
)

// NewExchange 创建测试消息
func NewExchange(data interface{}, headers ...string) *types.Exchange {
	metadata := types.NewMetadata()
	for i := 0; i+1 < len(headers); i += 2 {
		metadata.PutValue(headers[i], headers[i+1])
	}
	return types.NewExchange("TEST", data, metadata)
}

// CreateAndInitComponent 创建并初始化一个组件实例
func CreateAndInitComponent(targetType string, configuration types.Configuration, registry *base.SafeComponentSlice) (types.Component, error) {
	for _, component := range registry.Components() {
		if component.Type() == targetType {
			c := component.New()
			return c, c.Init(types.NewConfig(types.WithLogger(types.DiscardLogger())), configuration)
		}
	}
	return nil, types.ErrComponentNotFound
}

// Collector records the exchanges it processes.
type Collector struct {
	mu        sync.Mutex
	exchanges []*types.Exchange
	// Err is returned by Process when set
	Err error
	// Delay holds every exchange before it is recorded
	Delay time.Duration
}

func (c *Collector) Process(ctx context.Context, exchange *types.Exchange) error {
	if c.Delay > 0 {
		time.Sleep(c.Delay)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exchanges = append(c.exchanges, exchange)
	return c.Err
}

// Exchanges returns a snapshot of the recorded exchanges.
func (c *Collector) Exchanges() []*types.Exchange {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*types.Exchange{}, c.exchanges...)
}

// Count 已记录的消息数
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.exchanges)
}

// Bodies returns the data of the recorded exchanges, in order.
func (c *Collector) Bodies() []interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	var bodies []interface{}
	for _, e := range c.exchanges {
		bodies = append(bodies, e.Data)
	}
	return bodies
}

// Reset drops the recorded exchanges.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exchanges = nil
}

// WaitFor polls cond until it holds, failing the test after timeout.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, timeout, 5*time.Millisecond)
}

// Upper 把字符串消息体转成大写
var Upper = types.ProcessorFunc(func(ctx context.Context, exchange *types.Exchange) error {
	if s, ok := exchange.Data.(string); ok {
		exchange.Data = strings.ToUpper(s)
	}
	return nil
})

// Fail returns a processor that always fails with err.
func Fail(err error) types.Processor {
	return types.ProcessorFunc(func(ctx context.Context, exchange *types.Exchange) error {
		return err
	})
}

// ErrTest 测试错误
var ErrTest = errors.New("test error")
