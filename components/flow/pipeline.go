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

package flow

import (
	"context"

	"github.com/rulego/rulego-eip/api/types"
)

// Pipeline runs processors in sequence on the same exchange.
// It stops early when a step fails or marks the exchange with types.RouteStopProperty.
type Pipeline struct {
	processors []types.Processor
}

// NewPipeline creates a pipeline. nil processors are skipped.
func NewPipeline(processors ...types.Processor) *Pipeline {
	p := &Pipeline{}
	for _, item := range processors {
		if item != nil {
			p.processors = append(p.processors, item)
		}
	}
	return p
}

// Processors returns the steps of the pipeline.
func (p *Pipeline) Processors() []types.Processor {
	return p.processors
}

func (p *Pipeline) Process(ctx context.Context, exchange *types.Exchange) error {
	for _, item := range p.processors {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := item.Process(ctx, exchange); err != nil {
			return err
		}
		if exchange.BoolFlag(types.RouteStopProperty) {
			return nil
		}
	}
	return nil
}
