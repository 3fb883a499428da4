/*
 * Copyright 2025 tomoncle.
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

package ordering

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tomoncle/entitygate/types"
)

// SortField is one term of a Sort.
type SortField struct {
	Field string
	Desc  bool
}

func Asc(field string) SortField  { return SortField{Field: field} }
func Desc(field string) SortField { return SortField{Field: field, Desc: true} }

func (f SortField) String() string {
	if f.Desc {
		return f.Field + " DESC"
	}
	return f.Field + " ASC"
}

// Sort is an ordered list of sort terms. Its String form is the sort string
// handed to bridges: "Status DESC, Id ASC".
type Sort []SortField

func (s Sort) String() string {
	parts := make([]string, len(s))
	for i, f := range s {
		parts[i] = f.String()
	}
	return strings.Join(parts, ", ")
}

// Has reports whether s already orders by field.
func (s Sort) Has(field string) bool {
	for _, f := range s {
		if strings.EqualFold(f.Field, field) {
			return true
		}
	}
	return false
}

// With returns s followed by extra terms for fields s does not order by yet.
func (s Sort) With(extra ...SortField) Sort {
	out := make(Sort, len(s), len(s)+len(extra))
	copy(out, s)
	for _, f := range extra {
		if !out.Has(f.Field) {
			out = append(out, f)
		}
	}
	return out
}

var sortTermPattern = regexp.MustCompile(`^\[?([A-Za-z_][A-Za-z0-9_]*)\]?(?:\s+(?i:(ASC|DESC)))?$`)

// ParseSort reads a sort string. Field names may be wrapped in brackets and
// the direction defaults to ascending; empty terms are skipped.
func ParseSort(text string) (Sort, error) {
	var out Sort
	for _, raw := range strings.Split(text, ",") {
		term := strings.TrimSpace(raw)
		if term == "" {
			continue
		}
		m := sortTermPattern.FindStringSubmatch(term)
		if m == nil {
			return nil, fmt.Errorf("%w: bad sort term %q", types.ErrTranslation, term)
		}
		out = append(out, SortField{Field: m[1], Desc: strings.EqualFold(m[2], "DESC")})
	}
	return out, nil
}
