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
	"testing"

	"github.com/rulego/rulego-eip/api/types"
	"github.com/stretchr/testify/assert"
)

func newExchange() *types.Exchange {
	ex := types.NewExchange("ORDER", map[string]interface{}{"count": 3}, types.Metadata{"seq": "7", "type": "order"})
	ex.SetProperty("tenant", "acme")
	return ex
}

func TestSimpleLanguage(t *testing.T) {
	config := types.NewConfig()
	ex := newExchange()

	e, err := CreateExpression(config, types.LanguageSimple, "${header.seq}")
	assert.Nil(t, err)
	v, err := e.Evaluate(ex)
	assert.Nil(t, err)
	assert.Equal(t, "7", v)

	e, err = CreateExpression(config, types.LanguageSimple, "mock:${exchangeProperty.tenant}/${header.type}")
	assert.Nil(t, err)
	v, _ = e.Evaluate(ex)
	assert.Equal(t, "mock:acme/order", v)

	e, _ = CreateExpression(config, types.LanguageSimple, "${body.count}")
	v, _ = e.Evaluate(ex)
	assert.Equal(t, 3, v)

	e, _ = CreateExpression(config, types.LanguageSimple, "mock:static")
	v, _ = e.Evaluate(ex)
	assert.Equal(t, "mock:static", v)

	p, err := CreatePredicate(config, types.LanguageSimple, "${header.type} == 'order'")
	assert.Nil(t, err)
	ok, err := p.Matches(ex)
	assert.Nil(t, err)
	assert.True(t, ok)

	p = MustSimplePredicate("${body.count} > 5")
	ok, _ = p.Matches(ex)
	assert.False(t, ok)

	assert.Panics(t, func() { MustSimple("${a +}") })
}

func TestExprLanguage(t *testing.T) {
	config := types.NewConfig()
	e, err := CreateExpression(config, types.LanguageExpr, "int(header.seq) + 1")
	assert.Nil(t, err)
	v, err := e.Evaluate(newExchange())
	assert.Nil(t, err)
	assert.Equal(t, 8, v)

	p, err := CreatePredicate(config, types.LanguageExpr, "type == 'ORDER'")
	assert.Nil(t, err)
	ok, _ := p.Matches(newExchange())
	assert.True(t, ok)

	// 非布尔结果
	p, _ = CreatePredicate(config, types.LanguageExpr, "header")
	_, err = p.Matches(newExchange())
	assert.NotNil(t, err)
}

func TestJsLanguage(t *testing.T) {
	config := types.NewConfig()
	e, err := CreateExpression(config, types.LanguageJs, "header.seq + '-' + properties.tenant")
	assert.Nil(t, err)
	v, err := e.Evaluate(newExchange())
	assert.Nil(t, err)
	assert.Equal(t, "7-acme", v)

	p, err := CreatePredicate(config, types.LanguageJs, "if (body.count > 2) { return true; } return false;")
	assert.Nil(t, err)
	ok, err := p.Matches(newExchange())
	assert.Nil(t, err)
	assert.True(t, ok)
}

func TestConstantAndHeaderLanguage(t *testing.T) {
	config := types.NewConfig()
	e, _ := CreateExpression(config, types.LanguageConstant, "${header.seq}")
	v, _ := e.Evaluate(newExchange())
	assert.Equal(t, "${header.seq}", v)

	v, _ = Header("seq").Evaluate(newExchange())
	assert.Equal(t, "7", v)
	v, _ = Header("missing").Evaluate(newExchange())
	assert.Nil(t, v)

	p, _ := CreatePredicate(config, types.LanguageHeader, "type")
	ok, _ := p.Matches(newExchange())
	assert.True(t, ok)

	_, err := CreatePredicate(config, types.LanguageConstant, "maybe")
	assert.NotNil(t, err)
}

func TestResolveUnknown(t *testing.T) {
	_, err := Resolve(types.NewConfig(), "xpath")
	assert.True(t, errors.Is(err, ErrUnknownLanguage))

	RegisterLanguage("upper", func(types.Config) Language { return constantLanguage{} })
	_, err = Resolve(types.NewConfig(), "upper")
	assert.Nil(t, err)
}
