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

// Package eip builds and runs routes of enterprise integration patterns.
//
// A route is a tree of definitions (filter, aggregate, resequence, multicast, doTry,
// circuitBreaker, toD, wireTap, delay, process) reified into processors. Every
// processor is wrapped in a channel carrying the intercept strategies and, depending
// on its position in the tree, an error handler.
//
// Create and start a route
//
//	route, err := eip.New(&types.RouteDefinition{
//		Id: "orders",
//		Outputs: []types.Definition{
//			&types.AggregateDefinition{
//				CorrelationExpression: el.Header("orderId"),
//				Strategy:              aggregate.GroupedBodyStrategy,
//				CompletionSize:        3,
//				Outputs:               []types.Definition{&types.ProcessDefinition{Processor: sink}},
//			},
//		},
//	}, types.WithLogger(logger))
//
// Process an exchange
//
//	err = route.Process(ctx, types.NewExchange("ORDER", body, metadata))
//
// Get the route by id, stop and remove it
//
//	route, ok := eip.Get("orders")
//	eip.Del("orders")
package eip

import (
	"fmt"
	"sync"

	"github.com/rulego/rulego-eip/api/types"
	"github.com/rulego/rulego-eip/engine"
)

// DefaultPool 默认路由实例池
var DefaultPool = &RoutePool{}

// RoutePool 路由实例池，按路由ID保存已启动的路由
type RoutePool struct {
	routes sync.Map
}

// New builds and starts a route and stores it by id. A route already stored under
// the same id is returned as is. Routes without id are not stored.
func (g *RoutePool) New(def *types.RouteDefinition, opts ...types.Option) (*engine.Route, error) {
	if def == nil {
		return nil, fmt.Errorf("route definition: %w", types.ErrMissingConfiguration)
	}
	if v, ok := g.routes.Load(def.Id); ok && def.Id != "" {
		return v.(*engine.Route), nil
	}
	route, err := engine.BuildRoute(types.NewConfig(opts...), def)
	if err != nil {
		return nil, err
	}
	if err := route.Start(); err != nil {
		_ = route.Stop()
		return nil, err
	}
	if def.Id == "" {
		return route, nil
	}
	if actual, loaded := g.routes.LoadOrStore(def.Id, route); loaded {
		_ = route.Stop()
		return actual.(*engine.Route), nil
	}
	return route, nil
}

// Get 获取指定ID的路由
func (g *RoutePool) Get(id string) (*engine.Route, bool) {
	v, ok := g.routes.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*engine.Route), true
}

// Del stops the route with the given id and removes it.
func (g *RoutePool) Del(id string) error {
	v, ok := g.routes.LoadAndDelete(id)
	if !ok {
		return nil
	}
	return v.(*engine.Route).Stop()
}

// Range calls f for every stored route until f returns false.
func (g *RoutePool) Range(f func(id string, route *engine.Route) bool) {
	g.routes.Range(func(key, value any) bool {
		return f(key.(string), value.(*engine.Route))
	})
}

// Stop stops and removes every route.
func (g *RoutePool) Stop() {
	g.routes.Range(func(key, value any) bool {
		_ = value.(*engine.Route).Stop()
		g.routes.Delete(key)
		return true
	})
}

// New builds and starts a route in the default pool.
func New(def *types.RouteDefinition, opts ...types.Option) (*engine.Route, error) {
	return DefaultPool.New(def, opts...)
}

// Get returns a route of the default pool.
func Get(id string) (*engine.Route, bool) {
	return DefaultPool.Get(id)
}

// Del stops and removes a route of the default pool.
func Del(id string) error {
	return DefaultPool.Del(id)
}

// Stop stops every route of the default pool.
func Stop() {
	DefaultPool.Stop()
}
