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

package entitygate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/uptrace/bun"

	"github.com/tomoncle/entitygate/database"
	"github.com/tomoncle/entitygate/metadata"
	"github.com/tomoncle/entitygate/persistence"
	"github.com/tomoncle/entitygate/predicate"
	"github.com/tomoncle/entitygate/repository"
	"github.com/tomoncle/entitygate/types"
)

type Service[T any] interface {
	// Get returns the entity with the given key, or types.ErrNotFound.
	Get(ctx context.Context, key any) (*T, error)

	// All returns all entities ordered by key.
	All(ctx context.Context) ([]*T, error)

	// List returns entities that match where.
	List(ctx context.Context, where predicate.Predicate) ([]*T, error)

	// Page returns a page of entities filtered and sorted by the request's
	// filter and sort strings.
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)

	// Save inserts one or more new entities in a single transaction.
	Save(ctx context.Context, model ...*T) error

	// Update writes an existing entity.
	Update(ctx context.Context, model *T) error

	// SaveOrUpdate inserts entities with a zero key and updates the rest.
	SaveOrUpdate(ctx context.Context, model ...*T) error

	// Delete removes the entity with the given key.
	Delete(ctx context.Context, key any) error
}

type ServiceOption[T any] func(*baseServiceImpl[T])

// WithDB runs the service on db instead of the global database.
func WithDB[T any](db *bun.DB) ServiceOption[T] {
	return func(s *baseServiceImpl[T]) { s.db = db }
}

// WithResolver shares a key resolver, e.g. one with explicit registrations.
func WithResolver[T any](r *metadata.Resolver) ServiceOption[T] {
	return func(s *baseServiceImpl[T]) { s.resolver = r }
}

func WithHooks[T any](h repository.Hooks[T]) ServiceOption[T] {
	return func(s *baseServiceImpl[T]) { s.hooks = h }
}

type baseServiceImpl[T any] struct {
	db       *bun.DB
	resolver *metadata.Resolver
	hooks    repository.Hooks[T]
	log      database.Logger
	once     sync.Once
}

// NewService returns a Service whose every call runs on its own provider
// and repository, committed through SaveChanges and released before the
// call returns.
func NewService[T any](opts ...ServiceOption[T]) Service[T] {
	s := &baseServiceImpl[T]{log: database.GetLogger()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *baseServiceImpl[T]) bunDB() (*bun.DB, error) {
	db := s.db
	if db == nil {
		db = database.GetDB()
	}
	if db == nil {
		return nil, fmt.Errorf("%w: database not initialized", types.ErrConfiguration)
	}
	s.once.Do(func() {
		if s.resolver == nil {
			s.resolver = metadata.NewResolver(persistence.NewBunStore(db))
		}
	})
	return db, nil
}

func (s *baseServiceImpl[T]) newRepo() (*repository.Repository[T], error) {
	db, err := s.bunDB()
	if err != nil {
		return nil, err
	}
	provider := persistence.NewProvider(persistence.NewBunStore(db),
		persistence.WithTransactionBuffered(true),
		persistence.WithLogger(s.log),
	)
	return repository.New[T](provider, s.resolver,
		repository.WithOwnedProvider[T](),
		repository.WithHooks(s.hooks),
		repository.WithLogger[T](s.log),
	)
}

// read runs fn on a fresh repository and releases it.
func (s *baseServiceImpl[T]) read(ctx context.Context, fn func(*repository.Repository[T]) error) error {
	repo, err := s.newRepo()
	if err != nil {
		return err
	}
	return errors.Join(fn(repo), repo.Provider().Discard(ctx))
}

// write runs fn and commits what it tracked; nothing is written when fn
// fails.
func (s *baseServiceImpl[T]) write(ctx context.Context, fn func(*repository.Repository[T]) error) error {
	repo, err := s.newRepo()
	if err != nil {
		return err
	}
	if err := fn(repo); err != nil {
		return errors.Join(err, repo.Provider().Discard(ctx))
	}
	if err := repo.SaveChanges(ctx); err != nil {
		return errors.Join(err, repo.Provider().Discard(ctx))
	}
	return repo.Dispose(ctx)
}

func (s *baseServiceImpl[T]) Get(ctx context.Context, key any) (*T, error) {
	var out *T
	err := s.read(ctx, func(r *repository.Repository[T]) (err error) {
		out, err = r.GetByKey(ctx, key)
		return err
	})
	return out, err
}

func (s *baseServiceImpl[T]) All(ctx context.Context) ([]*T, error) {
	return s.List(ctx, nil)
}

func (s *baseServiceImpl[T]) List(ctx context.Context, where predicate.Predicate) ([]*T, error) {
	var out []*T
	err := s.read(ctx, func(r *repository.Repository[T]) (err error) {
		out, err = r.GetEntities(ctx, where)
		return err
	})
	return out, err
}

func (s *baseServiceImpl[T]) Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error) {
	if page == nil {
		page = types.NewDefaultPageRequest(0, 0)
	}
	var out *types.Pagination[T]
	err := s.read(ctx, func(r *repository.Repository[T]) (err error) {
		out, err = r.Page(ctx, page)
		return err
	})
	return out, err
}

func (s *baseServiceImpl[T]) Save(ctx context.Context, model ...*T) error {
	return s.write(ctx, func(r *repository.Repository[T]) error {
		for _, m := range model {
			if err := r.Insert(ctx, m); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *baseServiceImpl[T]) Update(ctx context.Context, model *T) error {
	return s.write(ctx, func(r *repository.Repository[T]) error {
		return r.Update(ctx, model)
	})
}

func (s *baseServiceImpl[T]) SaveOrUpdate(ctx context.Context, model ...*T) error {
	return s.write(ctx, func(r *repository.Repository[T]) error {
		for _, m := range model {
			if err := r.InsertOrUpdate(ctx, m); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *baseServiceImpl[T]) Delete(ctx context.Context, key any) error {
	return s.write(ctx, func(r *repository.Repository[T]) error {
		return r.DeleteByKey(ctx, key)
	})
}
