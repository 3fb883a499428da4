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

package repository

import (
	"context"

	"github.com/tomoncle/entitygate/metadata"
	"github.com/tomoncle/entitygate/ordering"
	"github.com/tomoncle/entitygate/persistence"
	"github.com/tomoncle/entitygate/predicate"
)

// querySource is where a repository reads entities from. Results are not
// attached to the context; the repository does that.
type querySource[T any] interface {
	find(ctx context.Context, where predicate.Predicate, sort ordering.Sort, pageSize, pageIndex int) ([]*T, error)
	total(ctx context.Context, where predicate.Predicate) (int, error)
	// byKey returns nil without error when no entity has the key.
	byKey(ctx context.Context, key any) (*T, error)
}

// graphSource queries the store client behind the persistence context.
type graphSource[T any] struct {
	r *Repository[T]
}

func (s graphSource[T]) find(ctx context.Context, where predicate.Predicate, sort ordering.Sort, pageSize, pageIndex int) ([]*T, error) {
	pc, err := s.r.provider.Get(ctx)
	if err != nil {
		return nil, err
	}
	q, _ := ordering.ApplyPagination(persistence.Query{Where: where, Sort: s.r.orderBy(sort)}, pageSize, pageIndex)
	var items []*T
	if err := pc.Store().Select(ctx, &items, q); err != nil {
		return nil, err
	}
	return items, nil
}

func (s graphSource[T]) total(ctx context.Context, where predicate.Predicate) (int, error) {
	pc, err := s.r.provider.Get(ctx)
	if err != nil {
		return 0, err
	}
	return pc.Store().Count(ctx, (*T)(nil), persistence.Query{Where: where})
}

func (s graphSource[T]) byKey(ctx context.Context, key any) (*T, error) {
	where, err := s.r.GetEqualityPredicate(key)
	if err != nil {
		return nil, err
	}
	items, err := s.find(ctx, where, nil, 1, 1)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return items[0], nil
}

// bridgeSource hands compiled filter and sort strings to a Bridge.
type bridgeSource[T any] struct {
	r      *Repository[T]
	bridge Bridge[T]
}

func (s bridgeSource[T]) find(ctx context.Context, where predicate.Predicate, sort ordering.Sort, pageSize, pageIndex int) ([]*T, error) {
	filter, err := predicate.Compile(where)
	if err != nil {
		return nil, err
	}
	return s.bridge.Select(ctx, filter, s.r.orderBy(sort).String(), pageSize, pageIndex)
}

func (s bridgeSource[T]) total(ctx context.Context, where predicate.Predicate) (int, error) {
	filter, err := predicate.Compile(where)
	if err != nil {
		return 0, err
	}
	return s.bridge.SelectTotal(ctx, filter)
}

func (s bridgeSource[T]) byKey(ctx context.Context, key any) (*T, error) {
	v, err := metadata.Coerce(s.r.key, key)
	if err != nil {
		return nil, err
	}
	return s.bridge.GetByKey(ctx, v)
}
