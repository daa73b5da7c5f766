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
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/rulego/rulego-eip/api/types"
	"github.com/rulego/rulego-eip/utils/cast"
	"github.com/rulego/rulego-eip/utils/js"
)

// ErrUnknownLanguage is returned by Resolve for an unregistered language name.
var ErrUnknownLanguage = errors.New("unknown expression language")

// Language compiles expression text into expressions and predicates.
type Language interface {
	CreateExpression(text string) (types.Expression, error)
	CreatePredicate(text string) (types.Predicate, error)
}

// LanguageFactory creates a language bound to a config.
type LanguageFactory func(config types.Config) Language

var (
	languagesMu sync.RWMutex
	languages   = map[string]LanguageFactory{
		types.LanguageSimple:   func(types.Config) Language { return simpleLanguage{} },
		types.LanguageExpr:     func(types.Config) Language { return exprLanguage{} },
		types.LanguageJs:       func(config types.Config) Language { return jsLanguage{config: config} },
		types.LanguageConstant: func(types.Config) Language { return constantLanguage{} },
		types.LanguageHeader:   func(types.Config) Language { return headerLanguage{} },
	}
)

// RegisterLanguage adds or replaces a language.
func RegisterLanguage(name string, factory LanguageFactory) {
	languagesMu.Lock()
	defer languagesMu.Unlock()
	languages[name] = factory
}

// Resolve returns the language registered under name.
func Resolve(config types.Config, name string) (Language, error) {
	languagesMu.RLock()
	factory, ok := languages[name]
	languagesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLanguage, name)
	}
	return factory(config), nil
}

// CreateExpression compiles text with the named language.
func CreateExpression(config types.Config, language, text string) (types.Expression, error) {
	l, err := Resolve(config, language)
	if err != nil {
		return nil, err
	}
	return l.CreateExpression(text)
}

// CreatePredicate compiles text with the named language.
func CreatePredicate(config types.Config, language, text string) (types.Predicate, error) {
	l, err := Resolve(config, language)
	if err != nil {
		return nil, err
	}
	return l.CreatePredicate(text)
}

// ExchangeEnv is the variable environment expressions are evaluated against.
//
//	body              exchange data
//	header, headers   exchange metadata
//	exchangeProperty, properties
//	id, type, dataType
func ExchangeEnv(exchange *types.Exchange) map[string]any {
	props := exchange.Properties()
	return map[string]any{
		"body":             exchange.Data,
		"header":           exchange.Metadata,
		"headers":          exchange.Metadata,
		"exchangeProperty": props,
		"properties":       props,
		"id":               exchange.Id,
		"type":             exchange.Type,
		"dataType":         string(exchange.DataType),
	}
}

// MustSimple compiles a simple expression and panics on error.
func MustSimple(text string) types.Expression {
	e, err := simpleLanguage{}.CreateExpression(text)
	if err != nil {
		panic(err)
	}
	return e
}

// MustSimplePredicate compiles a simple predicate and panics on error.
func MustSimplePredicate(text string) types.Predicate {
	p, err := simpleLanguage{}.CreatePredicate(text)
	if err != nil {
		panic(err)
	}
	return p
}

// Header returns an expression reading the named header. A missing header evaluates to nil.
func Header(name string) types.Expression {
	e, _ := headerLanguage{}.CreateExpression(name)
	return e
}

// Constant returns an expression that always evaluates to value.
func Constant(value interface{}) types.Expression {
	return types.ExpressionFunc(func(*types.Exchange) (interface{}, error) {
		return value, nil
	})
}

func toPredicate(e types.Expression) types.Predicate {
	return types.PredicateFunc(func(exchange *types.Exchange) (bool, error) {
		v, err := e.Evaluate(exchange)
		if err != nil {
			return false, err
		}
		return cast.ToBoolE(v)
	})
}

// simpleLanguage ${header.x} 形式，整体为一个 ${} 时返回表达式原值，否则返回拼接的字符串
type simpleLanguage struct{}

func (simpleLanguage) CreateExpression(text string) (types.Expression, error) {
	tmpl, err := NewTemplate(text)
	if err != nil {
		return nil, err
	}
	if !tmpl.HasVar() {
		return Constant(text), nil
	}
	return types.ExpressionFunc(func(exchange *types.Exchange) (interface{}, error) {
		return tmpl.Execute(ExchangeEnv(exchange))
	}), nil
}

// CreatePredicate 去掉 ${ } 后按expr表达式计算，如 ${header.type} == 'order'
func (simpleLanguage) CreatePredicate(text string) (types.Predicate, error) {
	tmpl, err := NewExprTemplate(text)
	if err != nil {
		return nil, err
	}
	return toPredicate(types.ExpressionFunc(func(exchange *types.Exchange) (interface{}, error) {
		return tmpl.Execute(ExchangeEnv(exchange))
	})), nil
}

type exprLanguage struct{}

func (exprLanguage) CreateExpression(text string) (types.Expression, error) {
	program, err := expr.Compile(text, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}
	return types.ExpressionFunc(func(exchange *types.Exchange) (interface{}, error) {
		return expr.Run(program, ExchangeEnv(exchange))
	}), nil
}

func (l exprLanguage) CreatePredicate(text string) (types.Predicate, error) {
	e, err := l.CreateExpression(text)
	if err != nil {
		return nil, err
	}
	return toPredicate(e), nil
}

const jsFuncName = "Evaluate"

// jsLanguage 表达式作为 Evaluate(body, header, properties, id) 函数体执行，没有 return 时自动添加
type jsLanguage struct {
	config types.Config
}

func (l jsLanguage) CreateExpression(text string) (types.Expression, error) {
	body := strings.TrimSpace(text)
	if !strings.Contains(body, "return") {
		body = "return " + body
	}
	script := fmt.Sprintf("function %s(body, header, properties, id) { %s }", jsFuncName, body)
	engine, err := js.NewGojaJsEngine(l.config, script, nil)
	if err != nil {
		return nil, err
	}
	return types.ExpressionFunc(func(exchange *types.Exchange) (interface{}, error) {
		return engine.Execute(jsFuncName, exchange.Data, exchange.Metadata.Values(), exchange.Properties(), exchange.Id)
	}), nil
}

func (l jsLanguage) CreatePredicate(text string) (types.Predicate, error) {
	e, err := l.CreateExpression(text)
	if err != nil {
		return nil, err
	}
	return toPredicate(e), nil
}

type constantLanguage struct{}

func (constantLanguage) CreateExpression(text string) (types.Expression, error) {
	return Constant(text), nil
}

func (constantLanguage) CreatePredicate(text string) (types.Predicate, error) {
	b, err := cast.ToBoolE(text)
	if err != nil {
		return nil, err
	}
	return types.PredicateFunc(func(*types.Exchange) (bool, error) {
		return b, nil
	}), nil
}

type headerLanguage struct{}

func (headerLanguage) CreateExpression(text string) (types.Expression, error) {
	name := strings.TrimSpace(text)
	return types.ExpressionFunc(func(exchange *types.Exchange) (interface{}, error) {
		if !exchange.Metadata.Has(name) {
			return nil, nil
		}
		return exchange.Metadata.GetValue(name), nil
	}), nil
}

// CreatePredicate 头存在且值不是 false 时匹配
func (headerLanguage) CreatePredicate(text string) (types.Predicate, error) {
	name := strings.TrimSpace(text)
	return types.PredicateFunc(func(exchange *types.Exchange) (bool, error) {
		if !exchange.Metadata.Has(name) {
			return false, nil
		}
		return exchange.Metadata.GetValue(name) != "false", nil
	}), nil
}
