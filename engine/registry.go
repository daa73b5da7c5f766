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
	"github.com/rulego/rulego-eip/api/types"
	"github.com/rulego/rulego-eip/components/action"
	"github.com/rulego/rulego-eip/components/base"
)

// Registry is the default registry of the components that process definitions refer to by type.
var Registry = base.NewComponentRegistry(action.Registry.Components()...)

// componentRegistry returns the registry of config, or the default one.
func componentRegistry(config types.Config) types.ComponentRegistry {
	if config.ComponentsRegistry != nil {
		return config.ComponentsRegistry
	}
	return Registry
}
