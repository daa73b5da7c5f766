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

// Exchange property and header keys shared by the processors.
const (
	CorrelationIdProperty = "CamelCorrelationId"

	// AggregatedSizeProperty number of exchanges merged into the aggregated exchange
	AggregatedSizeProperty = "CamelAggregatedSize"
	// AggregatedCompletedByProperty the trigger that completed the group
	AggregatedCompletedByProperty = "CamelAggregatedCompletedBy"
	// AggregatedCorrelationKeyProperty the correlation key of the group
	AggregatedCorrelationKeyProperty = "CamelAggregatedCorrelationKey"
	// AggregatedTimeoutProperty the inactivity timeout tracked for the group
	AggregatedTimeoutProperty = "CamelAggregatedTimeout"

	// AggregationCompleteAllGroups header or property. The exchange only signals completion of all groups.
	AggregationCompleteAllGroups = "CamelAggregationCompleteAllGroups"
	// AggregationCompleteAllGroupsInclusive header. The exchange is aggregated, then all groups complete.
	AggregationCompleteAllGroupsInclusive = "CamelAggregationCompleteAllGroupsInclusive"
	// AggregationCompleteCurrentGroup property. Completes the group of the exchange.
	AggregationCompleteCurrentGroup = "CamelAggregationCompleteCurrentGroup"

	// ExceptionCaughtProperty the error handled by a catch clause or an error handler
	ExceptionCaughtProperty = "CamelExceptionCaught"
	// FailureEndpointProperty the uri of the dead letter endpoint the exchange was moved to
	FailureEndpointProperty = "CamelFailureEndpoint"
	// RedeliveryCounterHeader number of redelivery attempts made
	RedeliveryCounterHeader = "CamelRedeliveryCounter"
	// ToEndpointProperty the uri a dynamic target resolved to
	ToEndpointProperty = "CamelToEndpoint"
	// MulticastIndexProperty the branch index of a multicast copy
	MulticastIndexProperty = "CamelMulticastIndex"
	// CircuitBreakerStateProperty the state of the breaker that processed the exchange
	CircuitBreakerStateProperty = "CamelCircuitBreakerState"
	// FilterMatchedProperty whether a filter predicate matched
	FilterMatchedProperty = "CamelFilterMatched"
	// RouteStopProperty set by a handled error, the enclosing pipelines stop routing the exchange
	RouteStopProperty = "CamelRouteStop"
)

// Completion triggers recorded in AggregatedCompletedByProperty.
const (
	CompletedBySize      = "size"
	CompletedByPredicate = "predicate"
	CompletedByStrategy  = "strategy"
	CompletedByInterval  = "interval"
	CompletedByTimeout   = "timeout"
	CompletedByForce     = "force"
)

// Expression language names.
const (
	LanguageSimple   = "simple"
	LanguageExpr     = "expr"
	LanguageJs       = "js"
	LanguageConstant = "constant"
	LanguageHeader   = "header"
)
