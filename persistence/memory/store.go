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

// Package memory provides an in-memory StoreClient used for tests and
// ephemeral environments.
package memory

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/tomoncle/entitygate/metadata"
	"github.com/tomoncle/entitygate/ordering"
	"github.com/tomoncle/entitygate/persistence"
	"github.com/tomoncle/entitygate/predicate"
	"github.com/tomoncle/entitygate/types"
)

var _ persistence.StoreClient = (*Store)(nil)

// Op names a store operation for failure injection and call counting.
type Op string

const (
	OpOpen     Op = "open"
	OpClose    Op = "close"
	OpBegin    Op = "begin"
	OpCommit   Op = "commit"
	OpRollback Op = "rollback"
	OpSelect   Op = "select"
	OpCount    Op = "count"
	OpInsert   Op = "insert"
	OpUpdate   Op = "update"
	OpDelete   Op = "delete"
	OpRefresh  Op = "refresh"
)

// ErrNotOpen is returned by data operations on a closed store.
var ErrNotOpen = errors.New("memory store is not open")

type table struct {
	rows   []any
	nextID int64
}

func (t *table) clone() *table {
	return &table{rows: append([]any(nil), t.rows...), nextID: t.nextID}
}

// Store keeps committed rows per entity type and a working copy while a
// transaction is active. Rows are stored as private copies; callers never
// share memory with the store.
type Store struct {
	mu       sync.Mutex
	resolver *metadata.Resolver
	tables   map[reflect.Type]*table
	work     map[reflect.Type]*table
	open     bool
	failures map[Op][]error
	calls    map[Op]int
}

// New returns an empty store. Identity fields are found through resolver;
// nil means a resolver reading only registrations and struct tags.
func New(resolver *metadata.Resolver) *Store {
	if resolver == nil {
		resolver = metadata.NewResolver(nil)
	}
	return &Store{
		resolver: resolver,
		tables:   make(map[reflect.Type]*table),
		failures: make(map[Op][]error),
		calls:    make(map[Op]int),
	}
}

// FailNext makes the next call of op return err. Calls queue up.
func (s *Store) FailNext(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], err)
}

// Calls returns how many times op ran, including injected failures.
func (s *Store) Calls(op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *Store) enter(op Op) error {
	s.calls[op]++
	if q := s.failures[op]; len(q) > 0 {
		s.failures[op] = q[1:]
		return q[0]
	}
	return nil
}

// Seed inserts entities straight into the committed data.
func (s *Store) Seed(entities ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entities {
		if err := s.insert(s.tables, e); err != nil {
			return err
		}
	}
	return nil
}

// Rows returns copies of the committed rows of T in insertion order.
func Rows[T any](s *Store) []*T {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[reflect.TypeOf((*T)(nil)).Elem()]
	if !ok {
		return nil
	}
	out := make([]*T, 0, len(t.rows))
	for _, r := range t.rows {
		out = append(out, clone(r).(*T))
	}
	return out
}

func (s *Store) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpOpen); err != nil {
		return err
	}
	s.open = true
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpClose); err != nil {
		return err
	}
	s.open = false
	s.work = nil
	return nil
}

func (s *Store) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *Store) Begin(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpBegin); err != nil {
		return err
	}
	if !s.open {
		return ErrNotOpen
	}
	if s.work == nil {
		s.work = make(map[reflect.Type]*table, len(s.tables))
		for k, t := range s.tables {
			s.work[k] = t.clone()
		}
	}
	return nil
}

func (s *Store) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpCommit); err != nil {
		return err
	}
	if s.work != nil {
		s.tables = s.work
		s.work = nil
	}
	return nil
}

func (s *Store) Rollback(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpRollback); err != nil {
		return err
	}
	s.work = nil
	return nil
}

func (s *Store) InTransaction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.work != nil
}

// KeyFieldName answers from the store's resolver.
func (s *Store) KeyFieldName(entityType reflect.Type) (string, error) {
	return s.resolver.KeyFieldName(entityType)
}

func (s *Store) current() (map[reflect.Type]*table, error) {
	if !s.open {
		return nil, ErrNotOpen
	}
	if s.work != nil {
		return s.work, nil
	}
	return s.tables, nil
}

func (s *Store) Select(ctx context.Context, dest any, q persistence.Query) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpSelect); err != nil {
		return err
	}
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Ptr || dv.Elem().Kind() != reflect.Slice || dv.Elem().Type().Elem().Kind() != reflect.Ptr {
		return fmt.Errorf("%w: select destination must be a pointer to a slice of pointers, got %T", types.ErrConfiguration, dest)
	}
	et := dv.Elem().Type().Elem().Elem()
	rows, err := s.match(et, q)
	if err != nil {
		return err
	}
	if q.Skip > 0 || q.Take > 0 {
		rows = window(rows, q.Skip, q.Take)
	}
	out := reflect.MakeSlice(dv.Elem().Type(), 0, len(rows))
	for _, r := range rows {
		out = reflect.Append(out, reflect.ValueOf(clone(r)))
	}
	dv.Elem().Set(out)
	return nil
}

func (s *Store) Count(ctx context.Context, model any, q persistence.Query) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpCount); err != nil {
		return 0, err
	}
	et := reflect.TypeOf(model)
	for et != nil && (et.Kind() == reflect.Ptr || et.Kind() == reflect.Slice) {
		et = et.Elem()
	}
	rows, err := s.match(et, q.Unwindowed())
	return len(rows), err
}

// match filters and orders the rows of et.
func (s *Store) match(et reflect.Type, q persistence.Query) ([]any, error) {
	tables, err := s.current()
	if err != nil {
		return nil, err
	}
	t, ok := tables[et]
	if !ok {
		return nil, nil
	}
	var out []any
	for _, r := range t.rows {
		if q.Where != nil {
			ok, err := predicate.Evaluate(q.Where, r)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		out = append(out, r)
	}
	if len(q.Sort) == 0 {
		return out, nil
	}
	exprs, err := ordering.Plan(et, q.Sort)
	if err != nil {
		return nil, err
	}
	var sortErr error
	sort.SliceStable(out, func(i, j int) bool {
		c, err := ordering.CompareBy(exprs, out[i], out[j])
		if err != nil && sortErr == nil {
			sortErr = err
		}
		return c < 0
	})
	return out, sortErr
}

func window(rows []any, skip, take int) []any {
	if skip >= len(rows) {
		return nil
	}
	rows = rows[skip:]
	if take > 0 && take < len(rows) {
		rows = rows[:take]
	}
	return rows
}

func (s *Store) Insert(ctx context.Context, entity any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpInsert); err != nil {
		return err
	}
	tables, err := s.current()
	if err != nil {
		return err
	}
	return s.insert(tables, entity)
}

// insert assigns a key when the entity has none: the next sequence value for
// integer keys, a random UUID for UUID keys.
func (s *Store) insert(tables map[reflect.Type]*table, entity any) error {
	et, err := entityType(entity)
	if err != nil {
		return err
	}
	desc, err := s.resolver.ResolveKeyField(et)
	if err != nil {
		return err
	}
	t := tables[et]
	if t == nil {
		t = &table{}
		tables[et] = t
	}
	key := reflect.ValueOf(entity).Elem().FieldByIndex(desc.Index)
	if key.IsZero() && key.Kind() != reflect.Ptr {
		switch {
		case desc.Kind == types.KindUUID:
			key.Set(reflect.ValueOf(uuid.New()))
		case desc.Kind.Numeric() && desc.Kind != types.KindFloat64:
			t.nextID++
			if key.CanInt() {
				key.SetInt(t.nextID)
			} else {
				key.SetUint(uint64(t.nextID))
			}
		}
	} else if key.CanInt() && key.Int() > t.nextID {
		t.nextID = key.Int()
	}
	if i, err := s.find(t, desc, entity); err != nil {
		return err
	} else if i >= 0 {
		return fmt.Errorf("%w: duplicate key %v for %s", types.ErrConcurrencyConflict, key.Interface(), et)
	}
	t.rows = append(t.rows, clone(entity))
	return nil
}

func (s *Store) Update(ctx context.Context, entity any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpUpdate); err != nil {
		return err
	}
	t, i, err := s.locate(entity)
	if err != nil {
		return err
	}
	if i < 0 {
		return fmt.Errorf("%w: update %T affected no rows", types.ErrConcurrencyConflict, entity)
	}
	t.rows[i] = clone(entity)
	return nil
}

func (s *Store) Delete(ctx context.Context, entity any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpDelete); err != nil {
		return err
	}
	t, i, err := s.locate(entity)
	if err != nil {
		return err
	}
	if i < 0 {
		return fmt.Errorf("%w: delete %T affected no rows", types.ErrConcurrencyConflict, entity)
	}
	t.rows = append(t.rows[:i], t.rows[i+1:]...)
	return nil
}

func (s *Store) Refresh(ctx context.Context, entity any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpRefresh); err != nil {
		return err
	}
	t, i, err := s.locate(entity)
	if err != nil {
		return err
	}
	if i < 0 {
		return fmt.Errorf("%w: %T is not stored", types.ErrNotFound, entity)
	}
	reflect.ValueOf(entity).Elem().Set(reflect.ValueOf(t.rows[i]).Elem())
	return nil
}

// locate finds the stored row with entity's key; the index is -1 when there
// is none.
func (s *Store) locate(entity any) (*table, int, error) {
	tables, err := s.current()
	if err != nil {
		return nil, -1, err
	}
	et, err := entityType(entity)
	if err != nil {
		return nil, -1, err
	}
	desc, err := s.resolver.ResolveKeyField(et)
	if err != nil {
		return nil, -1, err
	}
	t, ok := tables[et]
	if !ok {
		return nil, -1, nil
	}
	i, err := s.find(t, desc, entity)
	return t, i, err
}

func (s *Store) find(t *table, desc metadata.FieldDescriptor, entity any) (int, error) {
	want := reflect.ValueOf(entity).Elem().FieldByIndex(desc.Index).Interface()
	for i, r := range t.rows {
		got := reflect.ValueOf(r).Elem().FieldByIndex(desc.Index).Interface()
		eq, err := predicate.Equal(got, want)
		if err != nil {
			return -1, err
		}
		if eq {
			return i, nil
		}
	}
	return -1, nil
}

func entityType(entity any) (reflect.Type, error) {
	rv := reflect.ValueOf(entity)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: entity must be a non-nil pointer to a struct, got %T", types.ErrConfiguration, entity)
	}
	return rv.Elem().Type(), nil
}

func clone(entity any) any {
	rv := reflect.ValueOf(entity)
	cp := reflect.New(rv.Elem().Type())
	cp.Elem().Set(rv.Elem())
	return cp.Interface()
}
