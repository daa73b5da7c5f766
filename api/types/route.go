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

// RouteDefinition describes a route: the outputs an exchange runs through in order
// and the route level settings shared by their channels.
type RouteDefinition struct {
	// Id 路由ID
	Id string
	// Outputs top level steps, run as a pipeline
	Outputs []Definition
	// OnExceptions clauses consulted by the error handlers of the route, in order
	OnExceptions []*OnExceptionDefinition
	// InterceptStrategies route level interceptors, applied after the context ones
	InterceptStrategies []InterceptStrategy
	// ErrorHandlerFactory overrides Config.ErrorHandlerFactory for this route
	ErrorHandlerFactory ErrorHandlerFactory
	// DisableFaultHandling skips every FaultHandlingStrategy interceptor
	DisableFaultHandling bool
}
