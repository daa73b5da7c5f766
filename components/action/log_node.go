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
	"errors"
	"fmt"

	"github.com/rulego/rulego-eip/api/types"
	"github.com/rulego/rulego-eip/utils/el"
	"github.com/rulego/rulego-eip/utils/js"
	"github.com/rulego/rulego-eip/utils/maps"
	"github.com/rulego/rulego-eip/utils/str"
)

const (
	// LogDefaultMessage 默认日志模板
	LogDefaultMessage = "Exchange[id=${id}, type=${type}] body=${body}"
	LogFuncTemplate   = "function ToString(body, header, exchangeType) { %s }"
	LogFuncName       = "ToString"
)

// 注册节点
func init() {
	Registry.Add(&LogNode{})
}

// LogNodeConfiguration 节点配置
type LogNodeConfiguration struct {
	// Message simple语言模板，JsScript 为空时使用
	Message string
	// JsScript 只配置函数体脚本内容，脚本返回值string
	// 完整脚本函数："function ToString(body, header, exchangeType) { ${JsScript} }"
	JsScript string
}

// LogNode 把交换格式化成字符串并使用 `types.Config.Logger` 记录日志
type LogNode struct {
	Config   LogNodeConfiguration
	message  types.Expression
	jsEngine *js.GojaJsEngine
	logger   types.Logger
}

// Type 组件类型
func (x *LogNode) Type() string {
	return "log"
}

func (x *LogNode) New() types.Component {
	return &LogNode{Config: LogNodeConfiguration{Message: LogDefaultMessage}}
}

// Init 初始化
func (x *LogNode) Init(config types.Config, configuration types.Configuration) error {
	if err := maps.Map2Struct(configuration, &x.Config); err != nil {
		return err
	}
	x.logger = types.NewLogger(config.Logger)
	if x.Config.JsScript != "" {
		engine, err := js.NewGojaJsEngine(config, fmt.Sprintf(LogFuncTemplate, x.Config.JsScript), nil)
		if err != nil {
			return err
		}
		x.jsEngine = engine
		return nil
	}
	if x.Config.Message == "" {
		x.Config.Message = LogDefaultMessage
	}
	message, err := el.CreateExpression(config, types.LanguageSimple, x.Config.Message)
	if err != nil {
		return err
	}
	x.message = message
	return nil
}

// Process 记录日志，交换不做修改
func (x *LogNode) Process(_ context.Context, exchange *types.Exchange) error {
	var out interface{}
	var err error
	if x.jsEngine != nil {
		out, err = x.jsEngine.Execute(LogFuncName, exchange.Data, exchange.Metadata.Values(), exchange.Type)
		if err == nil {
			if _, ok := out.(string); !ok {
				err = errors.New("return the value is not string")
			}
		}
	} else {
		out, err = x.message.Evaluate(exchange)
	}
	if err != nil {
		return err
	}
	x.logger.Printf("%s", str.ToString(out))
	return nil
}
