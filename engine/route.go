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

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rulego/rulego-eip/api/types"
	"github.com/rulego/rulego-eip/components/errorhandler"
	"github.com/rulego/rulego-eip/components/flow"
	"golang.org/x/sync/errgroup"
)

var (
	_ types.RouteContext = (*Route)(nil)
	_ types.Processor    = (*Route)(nil)
	_ types.Service      = (*Route)(nil)
)

// Route is a reified route definition.
//
// NewRoute links the definition tree, Build reifies it, Start starts the processors
// owning timers or pools and Stop stops them. A stopped route cannot be started again,
// build a new one instead.
type Route struct {
	definition *types.RouteDefinition
	config     types.Config
	reifier    *Reifier

	mu        sync.Mutex
	built     bool
	started   bool
	stopped   bool
	clauses   []*types.ExceptionClause
	processor types.Processor
	services  []types.Service
}

// NewRoute creates a route and computes the ancestry of every definition in it.
func NewRoute(config types.Config, def *types.RouteDefinition) *Route {
	if def == nil {
		def = &types.RouteDefinition{}
	}
	r := &Route{definition: def, config: config}
	r.config.Logger = types.NewLogger(config.Logger)
	r.reifier = &Reifier{route: r, provisioner: NewProvisioner(r.config)}
	for _, clause := range def.OnExceptions {
		if clause != nil {
			types.Link(nil, clause)
		}
	}
	for _, output := range def.Outputs {
		if output != nil {
			types.Link(nil, output)
		}
	}
	return r
}

// BuildRoute creates and builds a route.
func BuildRoute(config types.Config, def *types.RouteDefinition) (*Route, error) {
	r := NewRoute(config, def)
	if err := r.Build(); err != nil {
		return nil, err
	}
	return r, nil
}

// Build reifies the onException clauses, then the outputs. It does nothing once built.
// On failure the services created so far are stopped.
func (r *Route) Build() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.built {
		return nil
	}
	if err := r.build(); err != nil {
		for i := len(r.services) - 1; i >= 0; i-- {
			_ = r.services[i].Stop()
		}
		r.services = nil
		r.clauses = nil
		return err
	}
	r.built = true
	return nil
}

func (r *Route) build() error {
	for _, def := range r.definition.OnExceptions {
		if def == nil {
			continue
		}
		p, err := r.reifier.Reify(def)
		if err != nil {
			return err
		}
		r.clauses = append(r.clauses, &types.ExceptionClause{Definition: def, Processor: p})
	}
	var processors []types.Processor
	for _, def := range r.definition.Outputs {
		if def == nil {
			continue
		}
		p, err := r.reifier.Reify(def)
		if err != nil {
			return err
		}
		if p == nil {
			continue
		}
		channel, err := r.reifier.wrapChannel(p, def, nil)
		if err != nil {
			return err
		}
		processors = append(processors, channel)
	}
	if len(processors) == 0 {
		return types.NewBuildError(nil, fmt.Errorf("route %s: %w", r.definition.Id, types.ErrMissingChildren))
	}
	r.processor = flow.NewPipeline(processors...)
	return nil
}

// Reifier returns the reifier of the route, for building definitions outside the route tree.
func (r *Route) Reifier() *Reifier {
	return r.reifier
}

// Processor returns the built processor, nil before Build.
func (r *Route) Processor() types.Processor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.processor
}

// Services returns the registered services in registration order.
func (r *Route) Services() []types.Service {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Service(nil), r.services...)
}

func (r *Route) addService(s types.Service) {
	r.services = append(r.services, s)
}

func (r *Route) Process(ctx context.Context, exchange *types.Exchange) error {
	p := r.Processor()
	if p == nil {
		return fmt.Errorf("route %s is not built: %w", r.definition.Id, types.ErrStopped)
	}
	return p.Process(ctx, exchange)
}

// Start starts the services concurrently. It builds the route first when needed.
func (r *Route) Start() error {
	if err := r.Build(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return fmt.Errorf("start route %s: %w", r.definition.Id, types.ErrStopped)
	}
	if r.started {
		return nil
	}
	var g errgroup.Group
	for _, s := range r.services {
		s := s
		g.Go(s.Start)
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("start route %s: %w", r.definition.Id, err)
	}
	r.started = true
	return nil
}

// Stop stops the services one by one in reverse registration order, so a parent
// flushes into its children before they stop.
func (r *Route) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for i := len(r.services) - 1; i >= 0; i-- {
		if err := r.services[i].Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	r.started = false
	r.stopped = true
	return errors.Join(errs...)
}

func (r *Route) RouteId() string {
	return r.definition.Id
}

func (r *Route) Config() types.Config {
	return r.config
}

func (r *Route) ExceptionClauses() []*types.ExceptionClause {
	return r.clauses
}

func (r *Route) EndpointRegistry() types.EndpointRegistry {
	return r.config.Endpoints
}

func (r *Route) errorHandlerFactory() types.ErrorHandlerFactory {
	if r.definition.ErrorHandlerFactory != nil {
		return r.definition.ErrorHandlerFactory
	}
	if r.config.ErrorHandlerFactory != nil {
		return r.config.ErrorHandlerFactory
	}
	return errorhandler.NewDefaultErrorHandlerFactory(errorhandler.RedeliveryPolicy{})
}
