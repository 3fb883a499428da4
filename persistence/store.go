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

package persistence

import (
	"context"
	"reflect"

	"github.com/tomoncle/entitygate/ordering"
	"github.com/tomoncle/entitygate/predicate"
)

// StoreClient is the session a Provider drives. One client holds at most one
// open connection and at most one active transaction on it. Entities are
// always passed as pointers to structs.
type StoreClient interface {
	Open(ctx context.Context) error
	Close() error
	IsOpen() bool

	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	InTransaction() bool

	// KeyFieldName reports the Go name of the entity type's identity field
	// as the store maps it.
	KeyFieldName(entityType reflect.Type) (string, error)

	// Select loads the rows matching q into dest, a pointer to a slice of
	// entity pointers.
	Select(ctx context.Context, dest any, q Query) error
	// Count returns the number of rows matching q, ignoring its window.
	Count(ctx context.Context, model any, q Query) (int, error)

	Insert(ctx context.Context, entity any) error
	Update(ctx context.Context, entity any) error
	Delete(ctx context.Context, entity any) error
	// Refresh overwrites entity with its stored values.
	Refresh(ctx context.Context, entity any) error
}

// Query is an object-graph query: a predicate, an ordering and a row window.
// A zero Take means no limit.
type Query struct {
	Where predicate.Predicate
	Sort  ordering.Sort
	Skip  int
	Take  int
}

// Window implements ordering.Pageable.
func (q Query) Window(skip, take int) Query {
	q.Skip = skip
	q.Take = take
	return q
}

// Unwindowed returns q without its row window, as used for counting.
func (q Query) Unwindowed() Query {
	return q.Window(0, 0)
}

var _ ordering.Pageable[Query] = Query{}
