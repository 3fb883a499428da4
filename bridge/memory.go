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
	"reflect"
	"sort"
	"sync"

	"github.com/tomoncle/entitygate/metadata"
	"github.com/tomoncle/entitygate/ordering"
	"github.com/tomoncle/entitygate/predicate"
)

// Memory is a Bridge over a slice held in memory, such as a cached read
// model. Results are copies. Filter and sort strings are parsed back and applied with the
// predicate evaluator and the kind-dispatched comparators.
type Memory[T any] struct {
	mu         sync.RWMutex
	rows       []*T
	entityType reflect.Type
	key        metadata.FieldDescriptor
}

// NewMemory returns a bridge serving rows. The key field of T is found
// through resolver.
func NewMemory[T any](resolver *metadata.Resolver, rows ...*T) (*Memory[T], error) {
	et := reflect.TypeOf((*T)(nil)).Elem()
	key, err := resolver.ResolveKeyField(et)
	if err != nil {
		return nil, err
	}
	return &Memory[T]{rows: rows, entityType: et, key: key}, nil
}

// Replace swaps the served rows.
func (m *Memory[T]) Replace(rows ...*T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = rows
}

func (m *Memory[T]) match(filter string) ([]*T, error) {
	where, err := predicate.Parse(filter)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*T, 0, len(m.rows))
	for _, r := range m.rows {
		ok, err := predicate.Evaluate(where, r)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory[T]) Select(ctx context.Context, filter, sortText string, pageSize, pageIndex int) ([]*T, error) {
	rows, err := m.match(filter)
	if err != nil {
		return nil, err
	}
	s, err := ordering.ParseSort(sortText)
	if err != nil {
		return nil, err
	}
	exprs, err := ordering.Plan(m.entityType, s)
	if err != nil {
		return nil, err
	}
	var sortErr error
	sort.SliceStable(rows, func(i, j int) bool {
		c, err := ordering.CompareBy(exprs, rows[i], rows[j])
		if err != nil && sortErr == nil {
			sortErr = err
		}
		return c < 0
	})
	if sortErr != nil {
		return nil, sortErr
	}
	page := ordering.Window(rows, pageSize, pageIndex)
	out := make([]*T, len(page))
	for i, r := range page {
		out[i] = clone(r)
	}
	return out, nil
}

func clone[T any](r *T) *T {
	cp := *r
	return &cp
}

func (m *Memory[T]) SelectTotal(ctx context.Context, filter string) (int, error) {
	rows, err := m.match(filter)
	return len(rows), err
}

func (m *Memory[T]) GetByKey(ctx context.Context, key any) (*T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rows {
		v := reflect.ValueOf(r).Elem().FieldByIndex(m.key.Index).Interface()
		eq, err := predicate.Equal(v, key)
		if err != nil {
			return nil, err
		}
		if eq {
			return clone(r), nil
		}
	}
	return nil, nil
}
