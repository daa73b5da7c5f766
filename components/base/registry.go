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

package base

import (
	"fmt"
	"sync"

	"github.com/rulego/rulego-eip/api/types"
)

var _ types.ComponentRegistry = (*ComponentRegistry)(nil)

// SafeComponentSlice 安全的组件列表切片
type SafeComponentSlice struct {
	components []types.Component
	sync.Mutex
}

// Add 线程安全地添加元素
func (p *SafeComponentSlice) Add(components ...types.Component) {
	p.Lock()
	defer p.Unlock()
	p.components = append(p.components, components...)
}

// Components 获取组件列表
func (p *SafeComponentSlice) Components() []types.Component {
	p.Lock()
	defer p.Unlock()
	return append([]types.Component(nil), p.components...)
}

// ComponentRegistry 组件注册器
type ComponentRegistry struct {
	components map[string]types.Component
	sync.RWMutex
}

// NewComponentRegistry creates a registry holding the given components.
func NewComponentRegistry(components ...types.Component) *ComponentRegistry {
	r := &ComponentRegistry{}
	for _, c := range components {
		_ = r.Register(c)
	}
	return r
}

// Register 注册组件，类型重复时返回错误
func (r *ComponentRegistry) Register(component types.Component) error {
	r.Lock()
	defer r.Unlock()
	if r.components == nil {
		r.components = make(map[string]types.Component)
	}
	if _, ok := r.components[component.Type()]; ok {
		return fmt.Errorf("the component already exists. componentType=%s", component.Type())
	}
	r.components[component.Type()] = component
	return nil
}

func (r *ComponentRegistry) Unregister(componentType string) error {
	r.Lock()
	defer r.Unlock()
	if _, ok := r.components[componentType]; !ok {
		return fmt.Errorf("%w: componentType=%s", types.ErrComponentNotFound, componentType)
	}
	delete(r.components, componentType)
	return nil
}

// NewComponent 创建组件新实例
func (r *ComponentRegistry) NewComponent(componentType string) (types.Component, error) {
	r.RLock()
	defer r.RUnlock()
	if c, ok := r.components[componentType]; !ok {
		return nil, fmt.Errorf("%w: componentType=%s", types.ErrComponentNotFound, componentType)
	} else {
		return c.New(), nil
	}
}

// GetComponents returns a copy of the registered components keyed by type.
func (r *ComponentRegistry) GetComponents() map[string]types.Component {
	r.RLock()
	defer r.RUnlock()
	var components = map[string]types.Component{}
	for k, v := range r.components {
		components[k] = v
	}
	return components
}
