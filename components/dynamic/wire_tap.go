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

package dynamic

import (
	"context"

	"github.com/rulego/rulego-eip/api/types"
	"github.com/rulego/rulego-eip/components/base"
)

var _ types.Service = (*WireTap)(nil)

// WireTap sends a one-way (InOnly) exchange to a dynamic target on its own dispatcher
// and returns at once. With copy the tapped exchange is a correlated copy, otherwise
// a new exchange sharing the body and headers of the original.
type WireTap struct {
	base.GracefulShutdown
	send       *ToDynamic
	copy       bool
	onPrepare  types.Processor
	dispatcher types.Dispatcher
	ownsPool   bool
	logger     types.Logger
}

// NewWireTap 创建窃听器
func NewWireTap(config types.Config, send *ToDynamic, copy bool, onPrepare types.Processor, dispatcher types.Dispatcher, ownsDispatcher bool) *WireTap {
	w := &WireTap{
		send:       send,
		copy:       copy,
		onPrepare:  onPrepare,
		dispatcher: dispatcher,
		ownsPool:   ownsDispatcher,
		logger:     types.NewLogger(config.Logger),
	}
	w.InitGracefulShutdown(w.logger, config.ShutdownTimeout)
	return w
}

func (w *WireTap) Process(ctx context.Context, exchange *types.Exchange) error {
	if !w.BeginOperation() {
		return w.CheckShutdownSignal()
	}
	var tapped *types.Exchange
	if w.copy {
		tapped = exchange.CorrelatedCopy()
	} else {
		tapped = types.NewExchangeWithType(exchange.Type, exchange.DataType, exchange.Data, exchange.Metadata)
		tapped.SetProperty(types.CorrelationIdProperty, exchange.Id)
	}
	tapped.Pattern = types.InOnly
	if w.onPrepare != nil {
		if err := w.onPrepare.Process(ctx, tapped); err != nil {
			w.EndOperation()
			return err
		}
	}
	shutdownCtx := w.GetShutdownContext()
	err := base.Submit(w.dispatcher, func() {
		defer w.EndOperation()
		if err := base.SafeProcess(shutdownCtx, w.send, tapped); err != nil {
			w.logger.Printf("wireTap: sending exchange %s to %s failed: %v", tapped.Id, w.send.Uri, err)
		}
	})
	if err != nil {
		w.EndOperation()
		return err
	}
	return nil
}

func (w *WireTap) Start() error {
	return nil
}

// Stop waits for the taps in flight, then releases an owned dispatcher.
func (w *WireTap) Stop() error {
	w.GracefulStop(func() {
		if !w.WaitForActiveOperations(w.ShutdownTimeout()) {
			w.ForceStop()
		}
	})
	if w.ownsPool && w.dispatcher != nil {
		w.dispatcher.Release()
	}
	return nil
}
