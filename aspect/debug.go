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

// Package aspect provides intercept strategies that can be installed on the
// context, a route or a single definition.
package aspect

import (
	"context"

	"github.com/rulego/rulego-eip/api/types"
)

const (
	// In 进入处理器前
	In = "IN"
	// Out 处理器返回后
	Out = "OUT"
)

var _ types.InterceptStrategy = (*Debug)(nil)

// OnDebug receives a copy of the exchange before (In) and after (Out) a processor runs.
type OnDebug func(nodeId string, flowType string, exchange *types.Exchange, err error)

// Debug 节点debug切面，记录每个处理器的输入输出
type Debug struct {
	// PointCut selects the definitions to trace, nil traces all
	PointCut func(definition types.Definition) bool
	OnDebug  OnDebug
}

func (aspect *Debug) Order() int {
	return 900
}

func (aspect *Debug) WrapProcessor(definition types.Definition, target types.Processor, next types.Processor) (types.Processor, error) {
	if aspect.OnDebug == nil || (aspect.PointCut != nil && !aspect.PointCut(definition)) {
		return target, nil
	}
	nodeId := definition.Node().Id
	if nodeId == "" {
		nodeId = definition.Kind()
	}
	return types.ProcessorFunc(func(ctx context.Context, exchange *types.Exchange) error {
		aspect.OnDebug(nodeId, In, exchange.Copy(), nil)
		err := target.Process(ctx, exchange)
		aspect.OnDebug(nodeId, Out, exchange.Copy(), err)
		return err
	}), nil
}
