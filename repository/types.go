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

	"github.com/tomoncle/entitygate/database"
	"github.com/tomoncle/entitygate/persistence"
)

// Hooks are optional callbacks around each mutation. A Before hook returning
// false vetoes the operation: nothing is written and no error is reported.
type Hooks[T any] struct {
	BeforeInsert func(ctx context.Context, entity *T) bool
	AfterInsert  func(ctx context.Context, entity *T)

	// BeforeUpdate receives the candidate values and a copy of the stored
	// ones.
	BeforeUpdate func(ctx context.Context, candidate, stored *T) bool
	AfterUpdate  func(ctx context.Context, entity *T)

	BeforeDelete func(ctx context.Context, entity *T) bool
	AfterDelete  func(ctx context.Context, entity *T)
}

// Sortable is implemented by entities that keep an external ordering, such
// as a position column shared with their siblings. Sort runs after every
// mutation of the entity with the context the mutation went through.
type Sortable interface {
	Sort(ctx context.Context, pc *persistence.Context) error
}

// Bridge is an alternate query path for data that is not read through the
// object graph, such as stored procedures. Filter and sort are the strings
// produced by predicate.Compile and ordering.Sort; a non-positive pageSize or
// pageIndex means the whole result set.
type Bridge[T any] interface {
	Select(ctx context.Context, filter, sort string, pageSize, pageIndex int) ([]*T, error)
	SelectTotal(ctx context.Context, filter string) (int, error)
	// GetByKey returns nil without error when no entity has the key.
	GetByKey(ctx context.Context, key any) (*T, error)
}

type options[T any] struct {
	bridge       Bridge[T]
	hooks        Hooks[T]
	log          database.Logger
	ownsProvider bool
}

type Option[T any] func(*options[T])

// WithBridge routes queries through b instead of the object graph.
func WithBridge[T any](b Bridge[T]) Option[T] {
	return func(o *options[T]) { o.bridge = b }
}

func WithHooks[T any](h Hooks[T]) Option[T] {
	return func(o *options[T]) { o.hooks = h }
}

func WithLogger[T any](log database.Logger) Option[T] {
	return func(o *options[T]) {
		if log != nil {
			o.log = log
		}
	}
}

// WithOwnedProvider makes Dispose release the provider too. Use it for a
// repository that is the only user of its provider.
func WithOwnedProvider[T any]() Option[T] {
	return func(o *options[T]) { o.ownsProvider = true }
}
