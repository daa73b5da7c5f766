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
	"fmt"

	"github.com/rulego/rulego-eip/api/types"
	"github.com/rulego/rulego-eip/utils/cache"
	"github.com/rulego/rulego-eip/utils/str"
)

// DefaultCacheSize 默认端点缓存大小
const DefaultCacheSize = 1000

// ToDynamic resolves the target uri of every exchange through the endpoint registry
// and sends the exchange there. Resolved endpoints are kept in an LRU cache.
type ToDynamic struct {
	Uri                   string
	target                types.Expression
	endpoints             types.EndpointRegistry
	cache                 *cache.LRUCache
	pattern               types.ExchangePattern
	ignoreInvalidEndpoint bool
	logger                types.Logger
}

// NewToDynamic creates a dynamic send. cacheSize 0 uses DefaultCacheSize, a negative size disables caching.
func NewToDynamic(config types.Config, uri string, pattern types.ExchangePattern, cacheSize int, ignoreInvalidEndpoint bool) (*ToDynamic, error) {
	if config.Endpoints == nil {
		return nil, fmt.Errorf("endpoint registry: %w", types.ErrMissingConfiguration)
	}
	target, err := NewTargetExpression(config, uri)
	if err != nil {
		return nil, err
	}
	t := &ToDynamic{
		Uri:                   uri,
		target:                target,
		endpoints:             config.Endpoints,
		pattern:               pattern,
		ignoreInvalidEndpoint: ignoreInvalidEndpoint,
		logger:                types.NewLogger(config.Logger),
	}
	if cacheSize == 0 {
		cacheSize = DefaultCacheSize
	}
	if cacheSize > 0 {
		t.cache = cache.NewLRUCache(cacheSize, nil)
	}
	return t, nil
}

// CachedEndpoints returns the number of cached endpoints.
func (t *ToDynamic) CachedEndpoints() int {
	if t.cache == nil {
		return 0
	}
	return t.cache.Len()
}

// Resolve evaluates the target uri of exchange and returns its endpoint.
func (t *ToDynamic) Resolve(exchange *types.Exchange) (string, types.Processor, error) {
	v, err := t.target.Evaluate(exchange)
	if err != nil {
		return "", nil, err
	}
	uri := str.ToString(v)
	if uri == "" {
		return "", nil, fmt.Errorf("%w: empty uri from %s", types.ErrNoSuchEndpoint, t.Uri)
	}
	if t.cache == nil {
		endpoint, err := t.endpoints.Resolve(uri)
		return uri, endpoint, err
	}
	endpoint, err := t.cache.GetOrCreate(uri, func() (interface{}, error) {
		return t.endpoints.Resolve(uri)
	})
	if err != nil {
		return uri, nil, err
	}
	return uri, endpoint.(types.Processor), nil
}

func (t *ToDynamic) Process(ctx context.Context, exchange *types.Exchange) error {
	uri, endpoint, err := t.Resolve(exchange)
	if err != nil {
		if t.ignoreInvalidEndpoint {
			t.logger.Printf("toD: endpoint %s ignored for exchange %s: %v", uri, exchange.Id, err)
			return nil
		}
		return err
	}
	exchange.SetProperty(types.ToEndpointProperty, uri)
	pattern := exchange.Pattern
	exchange.Pattern = t.pattern
	defer func() {
		exchange.Pattern = pattern
	}()
	return endpoint.Process(ctx, exchange)
}
