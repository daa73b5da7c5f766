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

// Package action provides the built-in components referenced by process definitions.
//
// The package includes:
//
// - LogNode: formats the exchange with a template or a js script and logs it
// - SetHeaderNode: sets a header from an expression
// - SetBodyNode: replaces the body with the result of an expression
// - ScriptNode: transforms body, headers and type with a js script
//
// Each component is registered with the Registry in its init function.
// A process definition names a component by type:
//
//	&types.ProcessDefinition{
//		Ref:           "setHeader",
//		Configuration: types.Configuration{"name": "region", "expression": "${body.region}"},
//	}
package action

import (
	"github.com/rulego/rulego-eip/components/base"
)

// Registry holds the built-in components of this package.
var Registry = &base.SafeComponentSlice{}
