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

package cache

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLRUCache(t *testing.T) {
	var evicted []string
	c := NewLRUCache(2, func(key string, value interface{}) {
		evicted = append(evicted, key)
	})
	c.Set("a", 1)
	c.Set("b", 2)
	// a 变为最近使用
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	c.Set("c", 3)
	assert.Equal(t, []string{"b"}, evicted)
	assert.False(t, c.Has("b"))
	assert.True(t, c.Has("a"))
	assert.Equal(t, 2, c.Len())

	c.Delete("a")
	assert.False(t, c.Has("a"))
	assert.Equal(t, []string{"b", "a"}, evicted)

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestLRUCacheUnbounded(t *testing.T) {
	c := NewLRUCache(0, nil)
	for i := 0; i < 100; i++ {
		c.Set(string(rune('a'+i%26))+string(rune(i)), i)
	}
	assert.Equal(t, 100, c.Len())
}

func TestLRUCacheGetOrCreate(t *testing.T) {
	c := NewLRUCache(4, nil)
	calls := 0
	create := func() (interface{}, error) {
		calls++
		return "producer", nil
	}
	v, err := c.GetOrCreate("mock:a", create)
	assert.Nil(t, err)
	assert.Equal(t, "producer", v)
	_, _ = c.GetOrCreate("mock:a", create)
	assert.Equal(t, 1, calls)

	_, err = c.GetOrCreate("mock:b", func() (interface{}, error) {
		return nil, errors.New("bad uri")
	})
	assert.NotNil(t, err)
	assert.False(t, c.Has("mock:b"))
}
