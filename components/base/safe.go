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

package base

import (
	"context"
	"fmt"

	"github.com/rulego/rulego-eip/api/types"
)

// SafeProcess runs processor and converts a panic into an error.
// Used for work executed on dispatcher goroutines, where a panic would kill the worker.
func SafeProcess(ctx context.Context, processor types.Processor, exchange *types.Exchange) (err error) {
	defer func() {
		if caught := recover(); caught != nil {
			err = fmt.Errorf("processor panic: %v", caught)
		}
	}()
	if processor == nil {
		return nil
	}
	return processor.Process(ctx, exchange)
}

// Submit runs task on dispatcher, or on the calling goroutine when dispatcher is nil.
func Submit(dispatcher types.Dispatcher, task func()) error {
	if dispatcher == nil {
		task()
		return nil
	}
	return dispatcher.Submit(task)
}
