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
	"reflect"

	"github.com/rulego/rulego-eip/api/types"
	"github.com/rulego/rulego-eip/utils/str"
)

// globalPrefix 全局属性占位符前缀，如 ${global.queue}
const globalPrefix = "global."

// resolvePlaceholders replaces ${global.key} in the exported string fields of def, its
// embedded NodeDefinition included, and in the string values of a process configuration.
// Unknown keys stay as written. The returned function restores the original values.
func resolvePlaceholders(config types.Config, def types.Definition) func() {
	if len(config.Properties) == 0 {
		return func() {}
	}
	dict := make(map[string]string, len(config.Properties))
	for k, v := range config.Properties {
		dict[globalPrefix+k] = v
	}
	var reverts []func()
	if v := reflect.ValueOf(def); v.Kind() == reflect.Ptr && !v.IsNil() && v.Elem().Kind() == reflect.Struct {
		reverts = resolveStruct(v.Elem(), dict, reverts)
	}
	if pd, ok := def.(*types.ProcessDefinition); ok && len(pd.Configuration) > 0 {
		original := pd.Configuration
		resolved := make(types.Configuration, len(original))
		changed := false
		for k, v := range original {
			if s, ok := v.(string); ok && str.CheckHasVar(s) {
				if r := str.SprintfDict(s, dict); r != s {
					resolved[k] = r
					changed = true
					continue
				}
			}
			resolved[k] = v
		}
		if changed {
			pd.Configuration = resolved
			reverts = append(reverts, func() { pd.Configuration = original })
		}
	}
	return func() {
		for i := len(reverts) - 1; i >= 0; i-- {
			reverts[i]()
		}
	}
}

func resolveStruct(v reflect.Value, dict map[string]string, reverts []func()) []func() {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		sf := t.Field(i)
		switch {
		case sf.Anonymous && field.Kind() == reflect.Struct:
			reverts = resolveStruct(field, dict, reverts)
		case !sf.IsExported() || !field.CanSet():
		case field.Kind() == reflect.String:
			original := field.String()
			if !str.CheckHasVar(original) {
				continue
			}
			if resolved := str.SprintfDict(original, dict); resolved != original {
				field.SetString(resolved)
				reverts = append(reverts, func() { field.SetString(original) })
			}
		}
	}
	return reverts
}
