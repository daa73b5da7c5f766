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

package maps

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type aggregateOptions struct {
	CompletionSize    int
	CompletionTimeout time.Duration
	ExecutorRef       string
	Eager             bool
}

func TestMap2Struct(t *testing.T) {
	m := map[string]interface{}{
		"completionSize":    float64(5),
		"completionTimeout": "1500ms",
		"executorRef":       "shared",
		"eager":             "true",
	}
	var opts aggregateOptions
	err := Map2Struct(m, &opts)
	assert.Nil(t, err)
	assert.Equal(t, 5, opts.CompletionSize)
	assert.Equal(t, 1500*time.Millisecond, opts.CompletionTimeout)
	assert.Equal(t, "shared", opts.ExecutorRef)
	assert.True(t, opts.Eager)

	var invalid aggregateOptions
	err = Map2Struct(map[string]interface{}{"completionTimeout": "5invalid"}, &invalid)
	assert.NotNil(t, err)

	// 非指针
	err = Map2Struct(m, opts)
	assert.NotNil(t, err)

	var empty aggregateOptions
	assert.Nil(t, Map2Struct(nil, &empty))
	assert.Equal(t, 0, empty.CompletionSize)

	assert.NotNil(t, Map2Struct("not a map", &empty))
}

func TestGet(t *testing.T) {
	value := map[string]interface{}{
		"name": "Alice",
		"address": map[string]interface{}{
			"city":   "Beijing",
			"detail": nil,
		},
		"tags": map[string]string{"env": "dev"},
	}
	cases := []struct {
		fieldName string
		expected  interface{}
	}{
		{"name", "Alice"},
		{"address.city", "Beijing"},
		{"address.detail", nil},
		{"address.detail.x", nil},
		{"address.zipcode", nil},
		{"tags.env", "dev"},
		{"", nil},
		{"...", nil},
	}
	for _, c := range cases {
		assert.Equal(t, c.expected, Get(value, c.fieldName), c.fieldName)
	}
	assert.Nil(t, Get("not a map", "field"))
}
