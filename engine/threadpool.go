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
	"fmt"

	"github.com/rulego/rulego-eip/api/types"
	"github.com/rulego/rulego-eip/utils/pool"
)

// ProvisionRequest describes the dispatcher a processor asks for.
type ProvisionRequest struct {
	// Name used in error messages, for example "Aggregator"
	Name string
	// PoolRef a shared pool, or the id of a thread pool profile
	PoolRef string
	// Async runs tasks on a worker pool
	Async bool
	// Mandatory returns an inline dispatcher instead of nil for synchronous processors
	Mandatory bool
}

// Provisioner resolves the dispatchers of the processors of a route.
type Provisioner struct {
	config types.Config
}

// NewProvisioner 创建线程池分配器
func NewProvisioner(config types.Config) *Provisioner {
	return &Provisioner{config: config}
}

// Provision returns the dispatcher for def and whether the caller owns it and must release it.
//
//	PoolRef found in Config.Pools        shared pool, not owned
//	PoolRef names a thread pool profile  new pooled dispatcher, owned
//	PoolRef unknown                      ErrNoSuchPool
//	Async                                new pooled dispatcher from the default profile, owned
//	Mandatory                            inline dispatcher, owned
//	otherwise                            nil
func (p *Provisioner) Provision(def types.Definition, req ProvisionRequest) (types.Dispatcher, bool, error) {
	if req.PoolRef != "" {
		if p.config.Pools != nil {
			if d, ok := p.config.Pools.Lookup(req.PoolRef); ok {
				return d, false, nil
			}
		}
		if profile, ok := p.config.ThreadPoolProfiles[req.PoolRef]; ok {
			return pool.NewPooledDispatcher(profile), true, nil
		}
		return nil, false, types.NewBuildError(def, fmt.Errorf("%s %w: %s", req.Name, types.ErrNoSuchPool, req.PoolRef))
	}
	if req.Async {
		profile, _ := p.config.ThreadPoolProfile(types.DefaultProfileId)
		return pool.NewPooledDispatcher(profile), true, nil
	}
	if req.Mandatory {
		return pool.NewInlineDispatcher(), true, nil
	}
	return nil, false, nil
}
