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

// Package node_pool manages resources shared between routes: named dispatchers
// and the endpoints dynamic sends and wire taps resolve.
package node_pool

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rulego/rulego-eip/api/types"
	"github.com/rulego/rulego-eip/utils/maps"
	"github.com/rulego/rulego-eip/utils/pool"
	"gopkg.in/yaml.v3"
)

var (
	_ types.PoolRegistry     = (*NodePool)(nil)
	_ types.EndpointRegistry = (*NodePool)(nil)
)

// DefaultNodePool 默认共享资源池管理器
var DefaultNodePool = NewNodePool(types.NewConfig())

// EndpointFactory creates the processor of a uri whose scheme has been registered.
type EndpointFactory func(uri string) (types.Processor, error)

// NodePool is a shared resource manager
type NodePool struct {
	Config types.Config
	// key:pool name value:types.Dispatcher
	pools sync.Map
	// key:uri value:types.Processor
	endpoints sync.Map
	// key:scheme value:EndpointFactory
	schemes sync.Map
}

func NewNodePool(config types.Config) *NodePool {
	return &NodePool{
		Config: config,
	}
}

// PoolsDefinition is the YAML layout read by Load.
type PoolsDefinition struct {
	// ThreadPoolProfiles are returned to the caller for types.WithThreadPoolProfile
	ThreadPoolProfiles []map[string]interface{} `yaml:"threadPoolProfiles"`
	// Pools are created and registered as shared dispatchers
	Pools []map[string]interface{} `yaml:"pools"`
}

// Load reads a YAML pools definition, registers the shared pools it declares and
// returns the thread pool profiles it declares.
func (n *NodePool) Load(data []byte) ([]types.ThreadPoolProfile, error) {
	var def PoolsDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, err
	}
	profiles, err := decodeProfiles(def.ThreadPoolProfiles)
	if err != nil {
		return nil, err
	}
	pools, err := decodeProfiles(def.Pools)
	if err != nil {
		return nil, err
	}
	for _, p := range pools {
		if _, err := n.NewPool(p); err != nil {
			return nil, err
		}
	}
	return profiles, nil
}

func decodeProfiles(items []map[string]interface{}) ([]types.ThreadPoolProfile, error) {
	var profiles []types.ThreadPoolProfile
	for _, item := range items {
		profile := types.DefaultThreadPoolProfile()
		profile.Id = ""
		if err := maps.Map2Struct(item, &profile); err != nil {
			return nil, err
		}
		if profile.Id == "" {
			return nil, fmt.Errorf("%w: thread pool profile id", types.ErrMissingConfiguration)
		}
		profiles = append(profiles, profile)
	}
	return profiles, nil
}

// NewPool creates a pooled dispatcher from profile and registers it under profile.Id.
func (n *NodePool) NewPool(profile types.ThreadPoolProfile) (types.Dispatcher, error) {
	d := pool.NewPooledDispatcher(profile)
	if err := n.RegisterPool(profile.Id, d); err != nil {
		d.Release()
		return nil, err
	}
	return d, nil
}

// RegisterPool registers a shared dispatcher. Routes never release shared dispatchers.
func (n *NodePool) RegisterPool(name string, dispatcher types.Dispatcher) error {
	if _, loaded := n.pools.LoadOrStore(name, dispatcher); loaded {
		return fmt.Errorf("duplicate pool id:%s", name)
	}
	return nil
}

// Lookup returns the shared dispatcher registered under name.
func (n *NodePool) Lookup(name string) (types.Dispatcher, bool) {
	if v, ok := n.pools.Load(name); ok {
		return v.(types.Dispatcher), true
	}
	return nil, false
}

// RemovePool unregisters and releases a shared dispatcher.
func (n *NodePool) RemovePool(name string) {
	if v, ok := n.pools.LoadAndDelete(name); ok {
		v.(types.Dispatcher).Release()
	}
}

// RegisterEndpoint binds a processor to an exact uri.
func (n *NodePool) RegisterEndpoint(uri string, processor types.Processor) error {
	if _, loaded := n.endpoints.LoadOrStore(uri, processor); loaded {
		return fmt.Errorf("duplicate endpoint uri:%s", uri)
	}
	return nil
}

// RemoveEndpoint unbinds a uri.
func (n *NodePool) RemoveEndpoint(uri string) {
	n.endpoints.Delete(uri)
}

// RegisterScheme binds a factory to every uri starting with scheme followed by ':'.
func (n *NodePool) RegisterScheme(scheme string, factory EndpointFactory) {
	n.schemes.Store(scheme, factory)
}

// Resolve finds the processor of uri. The query string is ignored when matching
// exact endpoints; scheme factories receive the full uri.
func (n *NodePool) Resolve(uri string) (types.Processor, error) {
	key := uri
	if i := strings.IndexByte(key, '?'); i >= 0 {
		key = key[:i]
	}
	if v, ok := n.endpoints.Load(key); ok {
		return v.(types.Processor), nil
	}
	if i := strings.IndexByte(key, ':'); i > 0 {
		if v, ok := n.schemes.Load(key[:i]); ok {
			return v.(EndpointFactory)(uri)
		}
	}
	return nil, fmt.Errorf("%w: %s", types.ErrNoSuchEndpoint, uri)
}

// Release releases every shared dispatcher and forgets all registrations.
func (n *NodePool) Release() {
	n.pools.Range(func(key, value any) bool {
		value.(types.Dispatcher).Release()
		n.pools.Delete(key)
		return true
	})
	n.endpoints.Range(func(key, value any) bool {
		n.endpoints.Delete(key)
		return true
	})
	n.schemes.Range(func(key, value any) bool {
		n.schemes.Delete(key)
		return true
	})
}
