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

package types

import (
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
)

// DataType 消息数据类型
type DataType string

const (
	JSON   = DataType("JSON")
	TEXT   = DataType("TEXT")
	BINARY = DataType("BINARY")
)

// ExchangePattern 消息交换模式
type ExchangePattern int

const (
	// InOut 请求/响应，调用方等待处理结果
	InOut ExchangePattern = iota
	// InOnly 单向投递，调用方不等待结果
	InOnly
)

func (p ExchangePattern) String() string {
	if p == InOnly {
		return "InOnly"
	}
	return "InOut"
}

// Metadata 消息头
type Metadata map[string]string

// NewMetadata 创建一个新的消息头实例
func NewMetadata() Metadata {
	return make(Metadata)
}

// BuildMetadata 通过map，创建一个新的消息头实例
func BuildMetadata(data Metadata) Metadata {
	metadata := make(Metadata, len(data))
	for k, v := range data {
		metadata[k] = v
	}
	return metadata
}

// Copy 复制
func (md Metadata) Copy() Metadata {
	return BuildMetadata(md)
}

// Has 是否存在某个key
func (md Metadata) Has(key string) bool {
	_, ok := md[key]
	return ok
}

// GetValue 通过key获取值
func (md Metadata) GetValue(key string) string {
	return md[key]
}

// PutValue 设置值
func (md Metadata) PutValue(key, value string) {
	if key != "" {
		md[key] = value
	}
}

// Values 获取所有值
func (md Metadata) Values() map[string]string {
	return md
}

// Exchange 在路由中流转的消息
// Exchange is the in-flight message that travels through a route. Headers are plain
// strings (Metadata); properties carry typed values owned by the processors of the route.
type Exchange struct {
	// Ts 消息时间戳
	Ts int64 `json:"ts"`
	// Id 消息ID
	Id string `json:"id"`
	// DataType 数据类型
	DataType DataType `json:"dataType"`
	// Type 消息类型
	Type string `json:"type"`
	// Data 消息内容
	Data interface{} `json:"data"`
	// Metadata 消息头
	Metadata Metadata `json:"metadata"`
	// Pattern 消息交换模式
	Pattern ExchangePattern `json:"pattern"`

	mu         sync.RWMutex
	properties map[string]interface{}
}

// NewExchange 创建一个新的消息实例，并通过uuid生成消息ID
func NewExchange(msgType string, data interface{}, metadata Metadata) *Exchange {
	return newExchange(newId(), time.Now().UnixMilli(), msgType, TEXT, metadata, data)
}

// NewExchangeWithType 创建一个新的消息实例，并指定数据类型
func NewExchangeWithType(msgType string, dataType DataType, data interface{}, metadata Metadata) *Exchange {
	return newExchange(newId(), time.Now().UnixMilli(), msgType, dataType, metadata, data)
}

func newId() string {
	uuId, _ := uuid.NewV4()
	return uuId.String()
}

func newExchange(id string, ts int64, msgType string, dataType DataType, metadata Metadata, data interface{}) *Exchange {
	if metadata == nil {
		metadata = NewMetadata()
	}
	return &Exchange{
		Ts:       ts,
		Id:       id,
		Type:     msgType,
		DataType: dataType,
		Data:     data,
		Metadata: metadata,
	}
}

// Copy returns an exchange with the same id, copied headers and properties.
// The data is shared.
func (e *Exchange) Copy() *Exchange {
	c := newExchange(e.Id, e.Ts, e.Type, e.DataType, e.Metadata.Copy(), e.Data)
	c.Pattern = e.Pattern
	c.properties = e.Properties()
	return c
}

// CorrelatedCopy returns a copy with a new id, remembering the id of the
// exchange it was copied from in the CorrelationId property.
func (e *Exchange) CorrelatedCopy() *Exchange {
	c := e.Copy()
	c.Id = newId()
	c.SetProperty(CorrelationIdProperty, e.Id)
	return c
}

// SetProperty 设置属性
func (e *Exchange) SetProperty(key string, value interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.properties == nil {
		e.properties = make(map[string]interface{})
	}
	e.properties[key] = value
}

// GetProperty 获取属性
func (e *Exchange) GetProperty(key string) (interface{}, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.properties[key]
	return v, ok
}

// RemoveProperty 删除属性，返回被删除的值
func (e *Exchange) RemoveProperty(key string) interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := e.properties[key]
	delete(e.properties, key)
	return v
}

// Properties returns a snapshot of all properties.
func (e *Exchange) Properties() map[string]interface{} {
	e.mu.RLock()
	defer e.mu.RUnlock()
	props := make(map[string]interface{}, len(e.properties))
	for k, v := range e.properties {
		props[k] = v
	}
	return props
}

// IntProperty returns the property as int, or def when absent or not an int.
func (e *Exchange) IntProperty(key string, def int) int {
	if v, ok := e.GetProperty(key); ok {
		if i, ok := v.(int); ok {
			return i
		}
	}
	return def
}

// BoolFlag reports whether the header or property key is set to true.
func (e *Exchange) BoolFlag(key string) bool {
	if e.Metadata.GetValue(key) == "true" {
		return true
	}
	if v, ok := e.GetProperty(key); ok {
		b, _ := v.(bool)
		return b
	}
	return false
}

// RemoveFlag removes the header and the property key.
func (e *Exchange) RemoveFlag(key string) {
	delete(e.Metadata, key)
	e.RemoveProperty(key)
}
