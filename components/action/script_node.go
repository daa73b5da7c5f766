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
	"github.com/rulego/rulego-eip/utils/js"
	"github.com/rulego/rulego-eip/utils/maps"
	"github.com/rulego/rulego-eip/utils/str"
)

const (
	// ScriptDefaultScript 默认的JS脚本，直接返回原始消息内容
	ScriptDefaultScript = "return {'body':body,'header':header,'type':exchangeType};"
	// ScriptFuncTemplate JS函数模板，用于包装用户脚本
	ScriptFuncTemplate = "function Transform(body, header, exchangeType) { %s }"
	ScriptFuncName     = "Transform"
)

var ScriptReturnFormatErr = errors.New("return the value is not a map")

func init() {
	Registry.Add(&ScriptNode{})
}

// ScriptNodeConfiguration 节点配置
type ScriptNodeConfiguration struct {
	// JsScript 用户自定义的JavaScript脚本内容
	// 脚本会被包装成完整函数：function Transform(body, header, exchangeType) { ${JsScript} }
	// 返回格式：return {'body':body,'header':header,'type':exchangeType};
	// 缺少的字段保持不变
	JsScript string
}

// ScriptNode 使用JS脚本转换消息体、消息头和消息类型
type ScriptNode struct {
	Config   ScriptNodeConfiguration
	jsEngine *js.GojaJsEngine
}

func (x *ScriptNode) Type() string {
	return "script"
}

func (x *ScriptNode) New() types.Component {
	return &ScriptNode{Config: ScriptNodeConfiguration{JsScript: ScriptDefaultScript}}
}

func (x *ScriptNode) Init(config types.Config, configuration types.Configuration) error {
	if err := maps.Map2Struct(configuration, &x.Config); err != nil {
		return err
	}
	if x.Config.JsScript == "" {
		x.Config.JsScript = ScriptDefaultScript
	}
	engine, err := js.NewGojaJsEngine(config, fmt.Sprintf(ScriptFuncTemplate, x.Config.JsScript), nil)
	if err != nil {
		return err
	}
	x.jsEngine = engine
	return nil
}

func (x *ScriptNode) Process(_ context.Context, exchange *types.Exchange) error {
	out, err := x.jsEngine.Execute(ScriptFuncName, exchange.Data, exchange.Metadata.Values(), exchange.Type)
	if err != nil {
		return err
	}
	formatData, ok := out.(map[string]interface{})
	if !ok {
		return ScriptReturnFormatErr
	}
	if body, ok := formatData["body"]; ok {
		exchange.Data = body
	}
	if exchangeType, ok := formatData["type"]; ok {
		exchange.Type = str.ToString(exchangeType)
	}
	if header, ok := formatData["header"]; ok {
		if m, ok := header.(map[string]interface{}); ok {
			metadata := types.NewMetadata()
			for k, v := range m {
				metadata.PutValue(k, str.ToString(v))
			}
			exchange.Metadata = metadata
		} else if m, ok := header.(map[string]string); ok {
			exchange.Metadata = types.BuildMetadata(m)
		} else if m, ok := header.(types.Metadata); ok {
			exchange.Metadata = types.BuildMetadata(m)
		}
	}
	return nil
}
