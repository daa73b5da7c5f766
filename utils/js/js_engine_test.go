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

package js

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rulego/rulego-eip/api/types"
	"github.com/stretchr/testify/assert"
)

func TestGojaJsEngine(t *testing.T) {
	config := types.NewConfig(types.WithProperties(types.Metadata{"prefix": "seq-"}))
	jsScript := `
	function Evaluate(body, header) {
		return global.prefix + header.seq + ":" + body.count;
	}
	function add(a, b) { return a + b; }
	`
	engine, err := NewGojaJsEngine(config, jsScript, nil)
	assert.Nil(t, err)
	defer engine.Stop()

	out, err := engine.Execute("Evaluate", map[string]interface{}{"count": 3}, map[string]string{"seq": "1"})
	assert.Nil(t, err)
	assert.Equal(t, "seq-1:3", out)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := engine.Execute("add", i, 1)
			assert.Nil(t, err)
			assert.Equal(t, int64(i+1), v)
		}(i)
	}
	wg.Wait()

	_, err = engine.Execute("missing")
	assert.NotNil(t, err)
}

func TestGojaJsEngineCompileError(t *testing.T) {
	_, err := NewGojaJsEngine(types.NewConfig(), "function (", nil)
	assert.NotNil(t, err)
}

func TestGojaJsEngineTimeout(t *testing.T) {
	config := types.NewConfig(types.WithScriptMaxExecutionTime(100 * time.Millisecond))
	engine, err := NewGojaJsEngine(config, `function loop(){ while(true){} }
	function ok(){ return 1; }`, nil)
	assert.Nil(t, err)
	_, err = engine.Execute("loop")
	assert.True(t, errors.Is(err, ErrExecutionTimeout))
	// vm 可以继续使用
	v, err := engine.Execute("ok")
	assert.Nil(t, err)
	assert.Equal(t, int64(1), v)
}
