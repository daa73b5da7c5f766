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

package el

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rulego/rulego-eip/utils/str"
)

type Template interface {
	Parse() error
	Execute(data map[string]any) (interface{}, error)
	// HasVar 是否有变量
	HasVar() bool
}

// NewTemplate 根据内容创建模板:
// 整体为 ${...} 时使用 ExprTemplate，包含 ${...} 时使用 MixedTemplate，否则原样输出
func NewTemplate(tmpl any) (Template, error) {
	if v, ok := tmpl.(string); ok {
		trimV := strings.TrimSpace(v)
		if strings.HasPrefix(trimV, str.VarPrefix) && closingBrace(trimV, 1) == len(trimV)-1 {
			return NewExprTemplate(trimV)
		} else if str.CheckHasVar(v) {
			return NewMixedTemplate(v)
		} else {
			return &NotTemplate{Tmpl: v}, nil
		}
	}
	return &AnyTemplate{Tmpl: tmpl}, nil
}

// closingBrace 返回与 open 位置的 { 匹配的 } 位置，跳过引号内的内容，没找到返回 -1
func closingBrace(s string, open int) int {
	depth := 0
	var quote byte
	for i := open; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			quote = c
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// ExprTemplate 模板变量支持 这种方式 ${xx},使用expr表达式计算
// 双引号外的 ${ } 标记被去掉，剩余内容作为一个expr表达式编译
type ExprTemplate struct {
	Tmpl    string
	Program *vm.Program
}

func NewExprTemplate(tmpl string) (*ExprTemplate, error) {
	var sb strings.Builder
	inQuotes := false
	for i := 0; i < len(tmpl); i++ {
		switch tmpl[i] {
		case '"':
			inQuotes = !inQuotes
			sb.WriteByte(tmpl[i])
		case '\\':
			if i+1 < len(tmpl) {
				sb.WriteByte(tmpl[i])
				i++
				sb.WriteByte(tmpl[i])
			}
		default:
			if !inQuotes && i+1 < len(tmpl) && tmpl[i] == '$' && tmpl[i+1] == '{' {
				end := closingBrace(tmpl, i+1)
				if end == -1 {
					return nil, fmt.Errorf("unclosed ${ in %q", tmpl)
				}
				sb.WriteString(tmpl[i+2 : end])
				i = end
				continue
			}
			sb.WriteByte(tmpl[i])
		}
	}

	t := &ExprTemplate{Tmpl: sb.String()}
	if err := t.Parse(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *ExprTemplate) Parse() error {
	if program, err := expr.Compile(t.Tmpl, expr.AllowUndefinedVariables()); err != nil {
		return err
	} else {
		t.Program = program
	}
	return nil
}

func (t *ExprTemplate) Execute(data map[string]any) (interface{}, error) {
	if t.Program != nil {
		return expr.Run(t.Program, data)
	}
	return nil, nil
}

func (t *ExprTemplate) HasVar() bool {
	return true
}

// NotTemplate 原样输出
type NotTemplate struct {
	Tmpl string
}

func (t *NotTemplate) Parse() error {
	return nil
}

func (t *NotTemplate) Execute(data map[string]any) (interface{}, error) {
	return t.Tmpl, nil
}

func (t *NotTemplate) HasVar() bool {
	return false
}

// AnyTemplate 非字符串值原样输出
type AnyTemplate struct {
	Tmpl any
}

func (t *AnyTemplate) Parse() error {
	return nil
}

func (t *AnyTemplate) Execute(data map[string]any) (interface{}, error) {
	return t.Tmpl, nil
}

func (t *AnyTemplate) HasVar() bool {
	return false
}

type mixedSegment struct {
	literal string
	program *vm.Program
}

// MixedTemplate 支持混合字符串和变量的模板，格式如 aa/${xxx}，结果总是字符串
type MixedTemplate struct {
	Tmpl     string
	segments []mixedSegment
	hasVars  bool
}

func NewMixedTemplate(tmpl string) (*MixedTemplate, error) {
	t := &MixedTemplate{Tmpl: tmpl}
	if err := t.Parse(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *MixedTemplate) Parse() error {
	t.segments = t.segments[:0]
	t.hasVars = false
	rest := t.Tmpl
	for {
		start := strings.Index(rest, str.VarPrefix)
		if start == -1 {
			break
		}
		end := closingBrace(rest, start+1)
		if end == -1 {
			break
		}
		program, err := expr.Compile(strings.TrimSpace(rest[start+2:end]), expr.AllowUndefinedVariables())
		if err != nil {
			return err
		}
		if start > 0 {
			t.segments = append(t.segments, mixedSegment{literal: rest[:start]})
		}
		t.segments = append(t.segments, mixedSegment{program: program})
		t.hasVars = true
		rest = rest[end+1:]
	}
	if rest != "" {
		t.segments = append(t.segments, mixedSegment{literal: rest})
	}
	return nil
}

func (t *MixedTemplate) Execute(data map[string]any) (interface{}, error) {
	if !t.hasVars {
		return t.Tmpl, nil
	}
	var sb strings.Builder
	for _, seg := range t.segments {
		if seg.program == nil {
			sb.WriteString(seg.literal)
			continue
		}
		val, err := expr.Run(seg.program, data)
		if err != nil {
			return nil, err
		}
		sb.WriteString(str.ToString(val))
	}
	return sb.String(), nil
}

func (t *MixedTemplate) HasVar() bool {
	return t.hasVars
}
