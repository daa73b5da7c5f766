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
	"fmt"

	"github.com/rulego/rulego-eip/api/types"
	"github.com/rulego/rulego-eip/utils/el"
	"github.com/rulego/rulego-eip/utils/maps"
	"github.com/rulego/rulego-eip/utils/str"
)

func init() {
	Registry.Add(&SetHeaderNode{})
}

// SetHeaderNodeConfiguration 节点配置
type SetHeaderNodeConfiguration struct {
	// Name 头名称
	Name string
	// Expression 值表达式
	Expression string
	// Language 表达式语言，默认 simple
	Language string
}

// SetHeaderNode 计算表达式并把结果字符串写入头
type SetHeaderNode struct {
	Config     SetHeaderNodeConfiguration
	expression types.Expression
}

func (x *SetHeaderNode) Type() string {
	return "setHeader"
}

func (x *SetHeaderNode) New() types.Component {
	return &SetHeaderNode{Config: SetHeaderNodeConfiguration{Language: types.LanguageSimple}}
}

func (x *SetHeaderNode) Init(config types.Config, configuration types.Configuration) error {
	if err := maps.Map2Struct(configuration, &x.Config); err != nil {
		return err
	}
	if x.Config.Name == "" {
		return fmt.Errorf("%w: name", types.ErrMissingConfiguration)
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

func (x *SetHeaderNode) Process(_ context.Context, exchange *types.Exchange) error {
	v, err := x.expression.Evaluate(exchange)
	if err != nil {
		return err
	}
	exchange.Metadata.PutValue(x.Config.Name, str.ToString(v))
	return nil
}
