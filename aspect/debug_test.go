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

package aspect

import (
	"context"
	"sync"
	"testing"

	"github.com/rulego/rulego-eip/api/types"
	"github.com/rulego/rulego-eip/engine"
	"github.com/rulego/rulego-eip/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type debugRecord struct {
	nodeId   string
	flowType string
	data     interface{}
	err      error
}

func TestDebug(t *testing.T) {
	var mu sync.Mutex
	var records []debugRecord
	debug := &Debug{
		PointCut: func(definition types.Definition) bool {
			return definition.Node().Id != "skip"
		},
		OnDebug: func(nodeId string, flowType string, exchange *types.Exchange, err error) {
			mu.Lock()
			defer mu.Unlock()
			records = append(records, debugRecord{nodeId: nodeId, flowType: flowType, data: exchange.Data, err: err})
		},
	}
	route, err := engine.BuildRoute(
		types.NewConfig(types.WithLogger(types.DiscardLogger()), types.WithInterceptStrategies(debug)),
		&types.RouteDefinition{Outputs: []types.Definition{
			&types.ProcessDefinition{NodeDefinition: types.NodeDefinition{Id: "upper"}, Processor: test.Upper},
			&types.ProcessDefinition{NodeDefinition: types.NodeDefinition{Id: "skip"}, Processor: test.Upper},
			&types.ProcessDefinition{NodeDefinition: types.NodeDefinition{Id: "fail"}, Processor: test.Fail(test.ErrTest)},
		}},
	)
	require.NoError(t, err)

	assert.Error(t, route.Process(context.Background(), test.NewExchange("abc")))
	require.Len(t, records, 4)
	assert.Equal(t, debugRecord{nodeId: "upper", flowType: In, data: "abc"}, records[0])
	assert.Equal(t, debugRecord{nodeId: "upper", flowType: Out, data: "ABC"}, records[1])
	assert.Equal(t, "fail", records[3].nodeId)
	assert.Equal(t, Out, records[3].flowType)
	assert.ErrorIs(t, records[3].err, test.ErrTest)
}
