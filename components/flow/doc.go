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

// Package flow provides the control flow processors built by the reifier:
//
// - Pipeline: runs processors in sequence, stopping at the first error
// - Filter: runs its output only when a predicate matches
// - Try: try block with catch clauses and a finally block
// - CircuitBreaker: count based breaker with an optional fallback
// - Multicast: sends a copy of the exchange to every branch, sequentially or in parallel
// - Delay: holds the exchange for a fixed or computed duration
package flow
