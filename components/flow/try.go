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
	"errors"

	"github.com/rulego/rulego-eip/api/types"
)

// CatchClause is a reified doCatch.
type CatchClause struct {
	// Errors matched with errors.Is, empty matches every error
	Errors []error
	OnWhen types.Predicate
	// Processor may be nil, the error is then only swallowed
	Processor types.Processor
}

// Matches reports whether the clause handles err.
func (c CatchClause) Matches(exchange *types.Exchange, err error) bool {
	matched := len(c.Errors) == 0
	for _, target := range c.Errors {
		if errors.Is(err, target) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	if c.OnWhen != nil {
		ok, whenErr := c.OnWhen.Matches(exchange)
		return whenErr == nil && ok
	}
	return true
}

// Try runs the try block, hands a failure to the first matching catch clause and
// always runs the finally block. An error of the finally block replaces the result.
type Try struct {
	try     types.Processor
	catches []CatchClause
	finally types.Processor
}

func NewTry(try types.Processor, catches []CatchClause, finally types.Processor) *Try {
	return &Try{try: try, catches: catches, finally: finally}
}

func (t *Try) Process(ctx context.Context, exchange *types.Exchange) error {
	err := t.try.Process(ctx, exchange)
	if err != nil {
		for _, c := range t.catches {
			if c.Matches(exchange, err) {
				exchange.SetProperty(types.ExceptionCaughtProperty, err)
				if c.Processor != nil {
					err = c.Processor.Process(ctx, exchange)
				} else {
					err = nil
				}
				break
			}
		}
	}
	if t.finally != nil {
		if finallyErr := t.finally.Process(ctx, exchange); finallyErr != nil {
			return finallyErr
		}
	}
	return err
}
