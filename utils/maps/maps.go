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

package maps

import (
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Map2Struct 把map解码到结构体，支持弱类型转换和 "10s" 形式的 time.Duration
func Map2Struct(input interface{}, output interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		Result: output,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// Get 通过a.b.c形式的路径读取嵌套map的值
func Get(input interface{}, fieldName string) interface{} {
	if fieldName == "" {
		return nil
	}
	current := input
	for _, key := range strings.Split(fieldName, ".") {
		switch m := current.(type) {
		case map[string]interface{}:
			current = m[key]
		case map[string]string:
			current = m[key]
		default:
			return nil
		}
	}
	return current
}
