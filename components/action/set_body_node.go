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

package action

import (
	"context"

	"github.com/rulego/rulego-eip/api/types"
	"github.com/rulego/rulego-eip/utils/el"
	"github.com/rulego/rulego-eip/utils/maps"
)

func init() {
	Registry.Add(&SetBodyNode{})
}

// SetBodyNodeConfiguration 节点配置
type SetBodyNodeConfiguration struct {
	// Expression 新消息体表达式
	Expression string
	// Language 表达式语言，默认 simple
	Language string
}

// SetBodyNode 使用表达式结果替换消息体
type SetBodyNode struct {
	Config     SetBodyNodeConfiguration
	expression types.Expression
}

func (x *SetBodyNode) Type() string {
	return "setBody"
}

func (x *SetBodyNode) New() types.Component {
	return &SetBodyNode{Config: SetBodyNodeConfiguration{Language: types.LanguageSimple}}
}

func (x *SetBodyNode) Init(config types.Config, configuration types.Configuration) error {
	if err := maps.Map2Struct(configuration, &x.Config); err != nil {
		return err
	}
	if x.Config.Language == "" {
		x.Config.Language = types.LanguageSimple
	}
	expression, err := el.CreateExpression(config, x.Config.Language, x.Config.Expression)
	if err != nil {
		return err
	}
	x.expression = expression
	return nil
}

func (x *SetBodyNode) Process(_ context.Context, exchange *types.Exchange) error {
	v, err := x.expression.Evaluate(exchange)
	if err != nil {
		return err
	}
	exchange.Data = v
	return nil
}
