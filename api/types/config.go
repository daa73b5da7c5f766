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
	"runtime"
	"time"
)

// DefaultProfileId is the id of the thread pool profile used when a node asks for
// a pool without naming one.
const DefaultProfileId = "default"

// ThreadPoolProfile describes how to create a pooled dispatcher.
type ThreadPoolProfile struct {
	// Id 配置ID
	Id string `mapstructure:"id" yaml:"id"`
	// MaxPoolSize 最大协程数
	MaxPoolSize int `mapstructure:"maxPoolSize" yaml:"maxPoolSize"`
	// KeepAliveTime 空闲协程的存活时间
	KeepAliveTime time.Duration `mapstructure:"keepAliveTime" yaml:"keepAliveTime"`
	// RejectedPolicy "CallerRuns" (default) or "Abort"
	RejectedPolicy string `mapstructure:"rejectedPolicy" yaml:"rejectedPolicy"`
}

// DefaultThreadPoolProfile returns the profile used when none is configured.
func DefaultThreadPoolProfile() ThreadPoolProfile {
	return ThreadPoolProfile{
		Id:             DefaultProfileId,
		MaxPoolSize:    runtime.NumCPU() * 10,
		KeepAliveTime:  60 * time.Second,
		RejectedPolicy: "CallerRuns",
	}
}

// Config defines the configuration shared by the reifier and the processors it builds.
type Config struct {
	// Logger is the logging interface, defaulting to `DefaultLogger()`.
	Logger Logger
	// Properties are global properties in key-value format.
	// Definition string attributes can reference them with ${global.propertyKey}; the
	// substitution only lasts while the definition is being reified.
	Properties Metadata
	// ScriptMaxExecutionTime is the maximum execution time for scripts, defaulting to 2000 milliseconds.
	ScriptMaxExecutionTime time.Duration
	// Pools resolves named shared dispatchers.
	Pools PoolRegistry
	// Endpoints resolves the targets of dynamic sends and wire taps.
	Endpoints EndpointRegistry
	// ComponentsRegistry creates the components referenced by process definitions.
	ComponentsRegistry ComponentRegistry
	// ThreadPoolProfiles keyed by id. The DefaultProfileId entry applies to unnamed pools.
	ThreadPoolProfiles map[string]ThreadPoolProfile
	// ErrorHandlerFactory creates the error handlers of the channels, unless the route sets its own.
	ErrorHandlerFactory ErrorHandlerFactory
	// InterceptStrategies context level interceptors.
	InterceptStrategies []InterceptStrategy
	// LifecycleListeners are notified when error handlers are attached.
	LifecycleListeners []LifecycleListener
	// ShutdownTimeout bounds the wait for in-flight work when stopping processors.
	ShutdownTimeout time.Duration
}

// NewConfig creates a new Config with default values and applies the provided options.
func NewConfig(opts ...Option) Config {
	c := &Config{
		ScriptMaxExecutionTime: time.Millisecond * 2000,
		Logger:                 DefaultLogger(),
		Properties:             NewMetadata(),
		ThreadPoolProfiles:     map[string]ThreadPoolProfile{DefaultProfileId: DefaultThreadPoolProfile()},
		ShutdownTimeout:        10 * time.Second,
	}

	for _, opt := range opts {
		_ = opt(c)
	}
	return *c
}

// ThreadPoolProfile returns the profile with the given id, falling back to the default profile.
func (c Config) ThreadPoolProfile(id string) (ThreadPoolProfile, bool) {
	if p, ok := c.ThreadPoolProfiles[id]; ok {
		return p, true
	}
	if id == "" || id == DefaultProfileId {
		if p, ok := c.ThreadPoolProfiles[DefaultProfileId]; ok {
			return p, true
		}
		return DefaultThreadPoolProfile(), true
	}
	return ThreadPoolProfile{}, false
}
