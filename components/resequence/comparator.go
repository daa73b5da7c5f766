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

// Package resequence restores the order of exchanges by a sequence position.
//
// - BatchResequencer: collects a window of exchanges and flushes it sorted
// - StreamResequencer: delivers continuously in order, waiting a bounded time for gaps to fill
//
// 重排序器：批量模式按时间窗口/数量排序后输出，流模式按序号连续输出。
package resequence

import (
	"fmt"

	"github.com/rulego/rulego-eip/api/types"
	"github.com/rulego/rulego-eip/utils/cast"
)

var _ types.SequenceComparator = (*ExpressionComparator)(nil)

// ExpressionComparator orders exchanges by the integer position returned by an expression.
type ExpressionComparator struct {
	Expression types.Expression
}

func NewExpressionComparator(expression types.Expression) *ExpressionComparator {
	return &ExpressionComparator{Expression: expression}
}

// Position evaluates the position of exchange.
func (c *ExpressionComparator) Position(exchange *types.Exchange) (int64, error) {
	v, err := c.Expression.Evaluate(exchange)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrInvalidPosition, err)
	}
	if v == nil {
		return 0, types.ErrInvalidPosition
	}
	p, err := cast.ToInt64E(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrInvalidPosition, err)
	}
	return p, nil
}

func (c *ExpressionComparator) Compare(o1, o2 *types.Exchange) int {
	p1, _ := c.Position(o1)
	p2, _ := c.Position(o2)
	switch {
	case p1 < p2:
		return -1
	case p1 > p2:
		return 1
	default:
		return 0
	}
}

// Successor reports whether o1 directly follows o2.
func (c *ExpressionComparator) Successor(o1, o2 *types.Exchange) bool {
	p1, err1 := c.Position(o1)
	p2, err2 := c.Position(o2)
	return err1 == nil && err2 == nil && p1 == p2+1
}

func (c *ExpressionComparator) IsValid(o *types.Exchange) bool {
	_, err := c.Position(o)
	return err == nil
}
