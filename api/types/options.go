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
	"time"
)

// Option is a function type that modifies the Config.
type Option func(*Config) error

// WithLogger is an option that sets the logger of the Config.
func WithLogger(logger Logger) Option {
	return func(c *Config) error {
		c.Logger = logger
		return nil
	}
}

// WithProperties is an option that adds placeholder properties to the Config.
func WithProperties(properties Metadata) Option {
	return func(c *Config) error {
		if c.Properties == nil {
			c.Properties = NewMetadata()
		}
		for k, v := range properties {
			c.Properties.PutValue(k, v)
		}
		return nil
	}
}

// WithScriptMaxExecutionTime is an option that sets the js max execution time of the Config.
func WithScriptMaxExecutionTime(scriptMaxExecutionTime time.Duration) Option {
	return func(c *Config) error {
		c.ScriptMaxExecutionTime = scriptMaxExecutionTime
		return nil
	}
}

// WithPoolRegistry is an option that sets the shared pool registry of the Config.
func WithPoolRegistry(pools PoolRegistry) Option {
	return func(c *Config) error {
		c.Pools = pools
		return nil
	}
}

// WithEndpointRegistry is an option that sets the endpoint registry of the Config.
func WithEndpointRegistry(endpoints EndpointRegistry) Option {
	return func(c *Config) error {
		c.Endpoints = endpoints
		return nil
	}
}

// WithComponentsRegistry is an option that sets the components' registry of the Config.
func WithComponentsRegistry(componentsRegistry ComponentRegistry) Option {
	return func(c *Config) error {
		c.ComponentsRegistry = componentsRegistry
		return nil
	}
}

// WithThreadPoolProfile is an option that adds or replaces a thread pool profile.
func WithThreadPoolProfile(profile ThreadPoolProfile) Option {
	return func(c *Config) error {
		if c.ThreadPoolProfiles == nil {
			c.ThreadPoolProfiles = make(map[string]ThreadPoolProfile)
		}
		c.ThreadPoolProfiles[profile.Id] = profile
		return nil
	}
}

// WithErrorHandlerFactory is an option that sets the default error handler factory.
func WithErrorHandlerFactory(factory ErrorHandlerFactory) Option {
	return func(c *Config) error {
		c.ErrorHandlerFactory = factory
		return nil
	}
}

// WithInterceptStrategies is an option that appends context level interceptors.
func WithInterceptStrategies(strategies ...InterceptStrategy) Option {
	return func(c *Config) error {
		c.InterceptStrategies = append(c.InterceptStrategies, strategies...)
		return nil
	}
}

// WithLifecycleListeners is an option that appends lifecycle listeners.
func WithLifecycleListeners(listeners ...LifecycleListener) Option {
	return func(c *Config) error {
		c.LifecycleListeners = append(c.LifecycleListeners, listeners...)
		return nil
	}
}

// WithShutdownTimeout is an option that sets how long stopping processors wait for in-flight work.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		c.ShutdownTimeout = timeout
		return nil
	}
}
