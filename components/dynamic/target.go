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

// Package dynamic sends exchanges to targets computed per exchange.
//
// A target is a composite uri: segments joined by '+', each segment evaluated on its own
// and the results concatenated. '+' inside RAW(...) or RAW{...} does not split.
// A segment is either
//
//	RAW(...)                  kept as written
//	language:<name>:<text>    compiled with the named language, for example language:header:target
//	anything else             a simple template, for example direct:${header.queue}
package dynamic

import (
	"fmt"
	"strings"

	"github.com/rulego/rulego-eip/api/types"
	"github.com/rulego/rulego-eip/utils/el"
	"github.com/rulego/rulego-eip/utils/str"
)

const (
	rawPrefix      = "RAW"
	languagePrefix = "language:"
)

// SplitTarget splits uri on '+' outside RAW(...) and RAW{...}. Parentheses and braces
// nested inside a RAW value are tracked. Empty segments are dropped.
func SplitTarget(uri string) []string {
	var segments []string
	var sb strings.Builder
	var open, closing byte
	depth := 0
	flush := func() {
		if s := strings.TrimSpace(sb.String()); s != "" {
			segments = append(segments, s)
		}
		sb.Reset()
	}
	for i := 0; i < len(uri); i++ {
		ch := uri[i]
		if depth == 0 && strings.HasPrefix(uri[i:], rawPrefix) && i+len(rawPrefix) < len(uri) {
			if next := uri[i+len(rawPrefix)]; next == '(' || next == '{' {
				open, closing = next, ')'
				if next == '{' {
					closing = '}'
				}
				sb.WriteString(uri[i : i+len(rawPrefix)+1])
				i += len(rawPrefix)
				depth = 1
				continue
			}
		}
		switch {
		case depth > 0 && ch == open:
			depth++
		case depth > 0 && ch == closing:
			depth--
		case depth == 0 && ch == '+':
			flush()
			continue
		}
		sb.WriteByte(ch)
	}
	flush()
	return segments
}

// NewTargetExpression compiles a composite uri into one expression returning the uri as string.
func NewTargetExpression(config types.Config, uri string) (types.Expression, error) {
	segments := SplitTarget(uri)
	if len(segments) == 0 {
		return nil, fmt.Errorf("empty target uri: %w", types.ErrMissingConfiguration)
	}
	parts := make([]types.Expression, 0, len(segments))
	for _, segment := range segments {
		e, err := segmentExpression(config, segment)
		if err != nil {
			return nil, fmt.Errorf("target segment %q: %w", segment, err)
		}
		parts = append(parts, e)
	}
	return types.ExpressionFunc(func(exchange *types.Exchange) (interface{}, error) {
		var sb strings.Builder
		for _, part := range parts {
			v, err := part.Evaluate(exchange)
			if err != nil {
				return nil, err
			}
			sb.WriteString(str.ToString(v))
		}
		return sb.String(), nil
	}), nil
}

func segmentExpression(config types.Config, segment string) (types.Expression, error) {
	if strings.HasPrefix(segment, rawPrefix+"(") || strings.HasPrefix(segment, rawPrefix+"{") {
		return el.Constant(segment), nil
	}
	if strings.HasPrefix(segment, languagePrefix) {
		rest := segment[len(languagePrefix):]
		name, text, found := strings.Cut(rest, ":")
		if !found {
			return nil, fmt.Errorf("%w: %s", el.ErrUnknownLanguage, rest)
		}
		return el.CreateExpression(config, name, text)
	}
	return el.CreateExpression(config, types.LanguageSimple, segment)
}
