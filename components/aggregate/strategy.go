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

package aggregate

import (
	"github.com/rulego/rulego-eip/api/types"
	"github.com/rulego/rulego-eip/utils/str"
)

// UseLatestStrategy keeps the newest exchange of the group.
var UseLatestStrategy = types.AggregationStrategyFunc(func(oldExchange, newExchange *types.Exchange) (*types.Exchange, error) {
	return newExchange, nil
})

// UseOriginalStrategy keeps the first exchange of the group.
var UseOriginalStrategy = types.AggregationStrategyFunc(func(oldExchange, newExchange *types.Exchange) (*types.Exchange, error) {
	if oldExchange == nil {
		return newExchange, nil
	}
	return oldExchange, nil
})

// GroupedBodyStrategy 把分组内的消息体收集为 []interface{}
var GroupedBodyStrategy = types.AggregationStrategyFunc(func(oldExchange, newExchange *types.Exchange) (*types.Exchange, error) {
	if oldExchange == nil {
		newExchange.Data = []interface{}{newExchange.Data}
		return newExchange, nil
	}
	list, _ := oldExchange.Data.([]interface{})
	merged := make([]interface{}, len(list), len(list)+1)
	copy(merged, list)
	oldExchange.Data = append(merged, newExchange.Data)
	return oldExchange, nil
})

// StringJoinStrategy joins the bodies of the group, as strings, with delimiter.
func StringJoinStrategy(delimiter string) types.AggregationStrategy {
	return types.AggregationStrategyFunc(func(oldExchange, newExchange *types.Exchange) (*types.Exchange, error) {
		body := str.ToString(newExchange.Data)
		if oldExchange == nil {
			newExchange.Data = body
			return newExchange, nil
		}
		oldExchange.Data = str.ToString(oldExchange.Data) + delimiter + body
		return oldExchange, nil
	})
}
