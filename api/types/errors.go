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
	"errors"
	"fmt"
)

// Build errors. Returned wrapped in *BuildError.
var (
	ErrUnsupportedDefinition = errors.New("unsupported definition")
	ErrMissingChildren       = errors.New("definition has no children")
	ErrMissingConfiguration  = errors.New("missing required configuration")
	ErrNoSuchPool            = errors.New("no such thread pool")
	ErrComponentNotFound     = errors.New("component not found")
)

// Runtime errors.
var (
	ErrInvalidCorrelationKey  = errors.New("invalid correlation key")
	ErrClosedCorrelationKey   = errors.New("correlation key has been closed")
	ErrConcurrentModification = errors.New("optimistic locking: concurrent modification")
	ErrAggregationFailed      = errors.New("error occurred during aggregation")
	ErrNilAggregation         = errors.New("aggregation strategy returned nil")
	ErrInvalidPosition        = errors.New("invalid sequence position")
	ErrDuplicatePosition      = errors.New("duplicate sequence position")
	ErrMessageRejected        = errors.New("message older than the last delivered one rejected")
	ErrCapacity               = errors.New("resequencer capacity exceeded")
	ErrPoolSaturated          = errors.New("no idle workers")
	ErrDispatcherReleased     = errors.New("dispatcher has been released")
	ErrNoSuchEndpoint         = errors.New("no such endpoint")
	ErrCircuitOpen            = errors.New("circuit breaker is open")
	ErrStopped                = errors.New("processor is stopped")
)

// BuildError aborts reification of a route.
type BuildError struct {
	// NodeId id of the definition that failed
	NodeId string
	// Kind the definition kind, for example "aggregate"
	Kind string
	Err  error
}

func (e *BuildError) Error() string {
	if e.NodeId == "" {
		return fmt.Sprintf("build %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("build %s[%s]: %v", e.Kind, e.NodeId, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// NewBuildError wraps err with the id and kind of def.
func NewBuildError(def Definition, err error) error {
	var buildErr *BuildError
	if errors.As(err, &buildErr) {
		return err
	}
	if def == nil {
		return &BuildError{Err: err}
	}
	return &BuildError{NodeId: def.Node().Id, Kind: def.Kind(), Err: err}
}

// ProcessingError is a failure of a processor while handling an exchange.
type ProcessingError struct {
	NodeId     string
	ExchangeId string
	Err        error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing exchange %s at %s: %v", e.ExchangeId, e.NodeId, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// NewProcessingError wraps err unless it is already a *ProcessingError.
func NewProcessingError(nodeId string, exchange *Exchange, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return err
	}
	id := ""
	if exchange != nil {
		id = exchange.Id
	}
	return &ProcessingError{NodeId: nodeId, ExchangeId: id, Err: err}
}
