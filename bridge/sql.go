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

package bridge

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/uptrace/bun"

	"github.com/tomoncle/entitygate/ordering"
	"github.com/tomoncle/entitygate/types"
)

// Statements are the text/template sources of the three bridge queries.
// Inside a template:
//
//	{{arg .X}}         binds X as a query argument and emits a placeholder
//	{{where .Filter}}  emits "WHERE <filter>" or nothing for an empty filter
//	{{.Filter}}        emits the filter string as SQL text
//
// Filter and sort text never goes through bun's placeholder parsing, so a
// '?' inside a quoted literal stays a character.
//
// For example, a stored procedure taking the filter as a parameter:
//
//	Select: "CALL list_orders({{arg .Filter}}, {{arg .Sort}}, {{arg .Skip}}, {{arg .Take}})"
type Statements struct {
	Select string
	Total  string
	ByKey  string
}

// Params is the data every statement is rendered with.
type Params struct {
	Filter    string
	Sort      string
	PageSize  int
	PageIndex int
	Skip      int
	Take      int
	Paged     bool
	Key       any
}

// SQL is a Bridge running raw statements through bun.
type SQL[T any] struct {
	db      bun.IDB
	selectT *template.Template
	totalT  *template.Template
	byKeyT  *template.Template
}

// NewSQL parses the statements. All three are required.
func NewSQL[T any](db bun.IDB, st Statements) (*SQL[T], error) {
	s := &SQL[T]{db: db}
	var err error
	if s.selectT, err = parse("select", st.Select); err != nil {
		return nil, err
	}
	if s.totalT, err = parse("total", st.Total); err != nil {
		return nil, err
	}
	if s.byKeyT, err = parse("bykey", st.ByKey); err != nil {
		return nil, err
	}
	return s, nil
}

func parse(name, text string) (*template.Template, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: bridge statement %s is empty", types.ErrConfiguration, name)
	}
	t, err := template.New(name).Funcs(funcs(nil)).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: bridge statement %s: %w", types.ErrConfiguration, name, err)
	}
	return t, nil
}

// Fragment is filter or sort text inside a statement. Printed directly it
// escapes '?' for bun; arg and where hand it over as bun.Safe.
type Fragment string

func (f Fragment) String() string { return strings.ReplaceAll(string(f), "?", `\?`) }

// view is what templates see: Params with the text fields as fragments.
type view struct {
	Params
	Filter Fragment
	Sort   Fragment
}

func funcs(args *[]any) template.FuncMap {
	bind := func(v any) {
		if args != nil {
			*args = append(*args, v)
		}
	}
	return template.FuncMap{
		"arg": func(v any) string {
			if f, ok := v.(Fragment); ok {
				v = string(f)
			}
			bind(v)
			return "?"
		},
		"where": func(filter any) string {
			text := fmt.Sprint(filter)
			if f, ok := filter.(Fragment); ok {
				text = string(f)
			}
			if text == "" {
				return ""
			}
			bind(bun.Safe(text))
			return "WHERE ?"
		},
	}
}

// render executes t with p and returns the query with its bound arguments.
func render(t *template.Template, p Params) (string, []any, error) {
	var args []any
	c, err := t.Clone()
	if err != nil {
		return "", nil, err
	}
	var b strings.Builder
	data := view{Params: p, Filter: Fragment(p.Filter), Sort: Fragment(p.Sort)}
	if err := c.Funcs(funcs(&args)).Execute(&b, data); err != nil {
		return "", nil, fmt.Errorf("%w: render %s: %w", types.ErrTranslation, t.Name(), err)
	}
	return b.String(), args, nil
}

func (s *SQL[T]) Select(ctx context.Context, filter, sort string, pageSize, pageIndex int) ([]*T, error) {
	p := Params{Filter: filter, Sort: sort, PageSize: pageSize, PageIndex: pageIndex}
	if ordering.Paged(pageSize, pageIndex) {
		p.Paged = true
		p.Skip = ordering.Skip(pageSize, pageIndex)
		p.Take = pageSize
	}
	query, args, err := render(s.selectT, p)
	if err != nil {
		return nil, err
	}
	var items []*T
	if err := s.db.NewRaw(query, args...).Scan(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *SQL[T]) SelectTotal(ctx context.Context, filter string) (int, error) {
	query, args, err := render(s.totalT, Params{Filter: filter})
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.NewRaw(query, args...).Scan(ctx, &n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQL[T]) GetByKey(ctx context.Context, key any) (*T, error) {
	query, args, err := render(s.byKeyT, Params{Key: key})
	if err != nil {
		return nil, err
	}
	var items []*T
	if err := s.db.NewRaw(query, args...).Scan(ctx, &items); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}
