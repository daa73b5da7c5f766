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

// Filter runs output only for exchanges matching predicate.
// The result is recorded in types.FilterMatchedProperty.
type Filter struct {
	predicate types.Predicate
	output    types.Processor
}

func NewFilter(predicate types.Predicate, output types.Processor) *Filter {
	return &Filter{predicate: predicate, output: output}
}

func (f *Filter) Process(ctx context.Context, exchange *types.Exchange) error {
	matched, err := f.predicate.Matches(exchange)
	if err != nil {
		return err
	}
	exchange.SetProperty(types.FilterMatchedProperty, matched)
	if !matched || f.output == nil {
		return nil
	}
	return f.output.Process(ctx, exchange)
}
