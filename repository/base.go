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
	"errors"
	"fmt"
	"reflect"

	"github.com/tomoncle/entitygate/database"
	"github.com/tomoncle/entitygate/metadata"
	"github.com/tomoncle/entitygate/ordering"
	"github.com/tomoncle/entitygate/persistence"
	"github.com/tomoncle/entitygate/predicate"
	"github.com/tomoncle/entitygate/types"
)

// Repository is the CRUD engine for entities of type T. Every instance it
// returns or accepts is tracked in the provider's context; whether a
// mutation is written at once or waits for SaveChanges follows the
// provider's TransactionBuffered flag.
//
// A repository shares the single-goroutine contract of its provider.
type Repository[T any] struct {
	provider   *persistence.Provider
	resolver   *metadata.Resolver
	entityType reflect.Type
	key        metadata.FieldDescriptor
	keyOrder   ordering.Expression
	hooks      Hooks[T]
	source     querySource[T]
	log        database.Logger
	owns       bool
	disposed   bool
}

// New builds a repository on provider. The identity field of T is resolved
// through resolver, or through the provider's store when resolver is nil,
// and its ordering is planned up front: a missing key or a key type that
// cannot be ordered is reported here as types.ErrConfiguration.
func New[T any](provider *persistence.Provider, resolver *metadata.Resolver, opts ...Option[T]) (*Repository[T], error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: repository needs a provider", types.ErrConfiguration)
	}
	o := options[T]{log: database.GetLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	if resolver == nil {
		resolver = metadata.NewResolver(provider.Store())
	}
	et := reflect.TypeOf((*T)(nil)).Elem()
	if et.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: entity type %s is not a struct", types.ErrConfiguration, et)
	}
	key, err := resolver.ResolveKeyField(et)
	if err != nil {
		return nil, err
	}
	keyOrder, err := ordering.PlanOrdering(et, key.Name)
	if err != nil {
		return nil, err
	}
	r := &Repository[T]{
		provider:   provider,
		resolver:   resolver,
		entityType: et,
		key:        key,
		keyOrder:   keyOrder,
		hooks:      o.hooks,
		log:        o.log,
		owns:       o.ownsProvider,
	}
	if o.bridge != nil {
		r.source = bridgeSource[T]{r: r, bridge: o.bridge}
	} else {
		r.source = graphSource[T]{r: r}
	}
	return r, nil
}

// GetEntityType returns T.
func (r *Repository[T]) GetEntityType() reflect.Type { return r.entityType }

// GetKeyFieldName returns the Go name of T's identity field.
func (r *Repository[T]) GetKeyFieldName() string { return r.key.Name }

// GetEqualityPredicate returns Key == value, coercing value to the key type.
func (r *Repository[T]) GetEqualityPredicate(value any) (predicate.Predicate, error) {
	return r.resolver.BuildEqualityPredicate(r.entityType, value)
}

// Provider returns the transaction scope the repository writes through.
func (r *Repository[T]) Provider() *persistence.Provider { return r.provider }

// orderBy completes sort with the key so that pages are stable.
func (r *Repository[T]) orderBy(sort ordering.Sort) ordering.Sort {
	return sort.With(r.keyOrder.SortField())
}

func (r *Repository[T]) context(ctx context.Context) (*persistence.Context, error) {
	if r.disposed {
		return nil, types.ErrDisposed
	}
	return r.provider.Get(ctx)
}

// GetEntities returns every entity matching where, ordered by key.
func (r *Repository[T]) GetEntities(ctx context.Context, where predicate.Predicate) ([]*T, error) {
	pc, err := r.context(ctx)
	if err != nil {
		return nil, err
	}
	items, err := r.source.find(ctx, where, nil, 0, 0)
	if err != nil {
		return nil, err
	}
	return r.attach(pc, items)
}

// GetPage returns page pageIndex of the entities matching where. Total is
// counted by a separate query over the same filter, or is types.Unpaged when
// pageSize or pageIndex is not positive.
func (r *Repository[T]) GetPage(ctx context.Context, where predicate.Predicate, sort ordering.Sort, pageSize, pageIndex int) (*types.Pagination[T], error) {
	pc, err := r.context(ctx)
	if err != nil {
		return nil, err
	}
	items, err := r.source.find(ctx, where, sort, pageSize, pageIndex)
	if err != nil {
		return nil, err
	}
	page := types.NewDefaultPagination[T](pageIndex, pageSize)
	if page.Items, err = r.attach(pc, items); err != nil {
		return nil, err
	}
	if ordering.Paged(pageSize, pageIndex) {
		if page.Total, err = r.source.total(ctx, where); err != nil {
			return nil, err
		}
	}
	return page, nil
}

// GetPageEntities is GetPage over a filter string and a sort string.
func (r *Repository[T]) GetPageEntities(ctx context.Context, filter, sort string, pageSize, pageIndex int) ([]*T, int, error) {
	where, s, err := parseCriteria(filter, sort)
	if err != nil {
		return nil, 0, err
	}
	page, err := r.GetPage(ctx, where, s, pageSize, pageIndex)
	if err != nil {
		return nil, 0, err
	}
	return page.Items, page.Total, nil
}

// Page serves a PageRequest.
func (r *Repository[T]) Page(ctx context.Context, req *types.PageRequest) (*types.Pagination[T], error) {
	where, s, err := parseCriteria(req.GetFilter(), req.GetSort())
	if err != nil {
		return nil, err
	}
	return r.GetPage(ctx, where, s, req.GetPageSize(), req.GetPage())
}

// FindWhere returns the entities matching a filter string.
func (r *Repository[T]) FindWhere(ctx context.Context, filter string) ([]*T, error) {
	where, err := predicate.Parse(filter)
	if err != nil {
		return nil, err
	}
	return r.GetEntities(ctx, where)
}

func parseCriteria(filter, sort string) (predicate.Predicate, ordering.Sort, error) {
	where, err := predicate.Parse(filter)
	if err != nil {
		return nil, nil, err
	}
	s, err := ordering.ParseSort(sort)
	if err != nil {
		return nil, nil, err
	}
	return where, s, nil
}

// Total counts the entities matching where.
func (r *Repository[T]) Total(ctx context.Context, where predicate.Predicate) (int, error) {
	if _, err := r.context(ctx); err != nil {
		return 0, err
	}
	return r.source.total(ctx, where)
}

// Get returns the first entity matching where in key order. With a buffered
// provider, instances added but not yet saved are searched first.
func (r *Repository[T]) Get(ctx context.Context, where predicate.Predicate) (*T, error) {
	pc, err := r.context(ctx)
	if err != nil {
		return nil, err
	}
	if e, err := r.findAdded(pc, where); err != nil || e != nil {
		return e, err
	}
	items, err := r.source.find(ctx, where, nil, 1, 1)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no %s matches the filter", types.ErrNotFound, r.entityType)
	}
	items, err = r.attach(pc, items)
	if err != nil {
		return nil, err
	}
	return items[0], nil
}

// GetByKey returns the entity whose key equals key.
func (r *Repository[T]) GetByKey(ctx context.Context, key any) (*T, error) {
	pc, err := r.context(ctx)
	if err != nil {
		return nil, err
	}
	where, err := r.GetEqualityPredicate(key)
	if err != nil {
		return nil, err
	}
	if e, err := r.findAdded(pc, where); err != nil || e != nil {
		return e, err
	}
	e, err := r.source.byKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("%w: no %s with %s=%v", types.ErrNotFound, r.entityType, r.key.Name, key)
	}
	items, err := r.attach(pc, []*T{e})
	if err != nil {
		return nil, err
	}
	return items[0], nil
}

// findAdded searches the tracked, not yet saved instances of T. It only
// looks when the provider is buffered; otherwise adds are already stored.
func (r *Repository[T]) findAdded(pc *persistence.Context, where predicate.Predicate) (*T, error) {
	if !r.provider.TransactionBuffered() {
		return nil, nil
	}
	for _, e := range pc.Entries(types.Added) {
		t, ok := e.Entity.(*T)
		if !ok {
			continue
		}
		match, err := predicate.Evaluate(where, t)
		if err != nil {
			return nil, err
		}
		if match {
			return t, nil
		}
	}
	return nil, nil
}

// attach tracks fetched entities as Unchanged. An entity whose key is
// already tracked resolves to the tracked instance.
func (r *Repository[T]) attach(pc *persistence.Context, items []*T) ([]*T, error) {
	tracked := map[any]*T{}
	for _, e := range pc.Entries() {
		if t, ok := e.Entity.(*T); ok && e.State != types.Added {
			tracked[r.keyOf(t)] = t
		}
	}
	out := make([]*T, len(items))
	for i, item := range items {
		if t, ok := tracked[r.keyOf(item)]; ok {
			out[i] = t
			continue
		}
		if _, err := pc.Attach(item, types.Unchanged); err != nil {
			return nil, err
		}
		tracked[r.keyOf(item)] = item
		out[i] = item
	}
	return out, nil
}

// keyOf reads the key of e as a map key. Pointer keys are dereferenced so
// equal values from different fetches compare equal; a nil pointer is nil.
func (r *Repository[T]) keyOf(e *T) any {
	v := reflect.ValueOf(e).Elem().FieldByIndex(r.key.Index)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	return v.Interface()
}

// Insert attaches entity as Added. Unless the provider is buffered the
// insert is written at once.
func (r *Repository[T]) Insert(ctx context.Context, entity *T) error {
	pc, err := r.context(ctx)
	if err != nil {
		return err
	}
	if entity == nil {
		return fmt.Errorf("%w: insert of nil %s", types.ErrConfiguration, r.entityType)
	}
	if r.hooks.BeforeInsert != nil && !r.hooks.BeforeInsert(ctx, entity) {
		r.log.Debug("insert vetoed", "type", r.entityType)
		return nil
	}
	prev := pc.State(entity)
	if err := pc.SetState(entity, types.Added); err != nil {
		return err
	}
	if err := r.autoCommit(ctx, pc, entity, prev); err != nil {
		return err
	}
	if r.hooks.AfterInsert != nil {
		r.hooks.AfterInsert(ctx, entity)
	}
	r.log.Debug("entity inserted", "type", r.entityType, "key", r.keyOf(entity))
	return r.sortable(ctx, pc, entity)
}

// Update marks entity Modified. Updating an instance that was added but
// never saved does nothing. BeforeUpdate sees the stored values; a veto
// leaves the instance Unchanged.
func (r *Repository[T]) Update(ctx context.Context, entity *T) error {
	pc, err := r.context(ctx)
	if err != nil {
		return err
	}
	if entity == nil {
		return fmt.Errorf("%w: update of nil %s", types.ErrConfiguration, r.entityType)
	}
	prev := pc.State(entity)
	if prev == types.Added {
		return nil
	}
	if r.hooks.BeforeUpdate != nil {
		stored, err := r.stored(ctx, pc, entity)
		if err != nil {
			return err
		}
		if !r.hooks.BeforeUpdate(ctx, entity, stored) {
			r.log.Debug("update vetoed", "type", r.entityType, "key", r.keyOf(entity))
			return pc.SetState(entity, types.Unchanged)
		}
	}
	if err := pc.SetState(entity, types.Modified); err != nil {
		return err
	}
	if err := r.autoCommit(ctx, pc, entity, prev); err != nil {
		return err
	}
	if r.hooks.AfterUpdate != nil {
		r.hooks.AfterUpdate(ctx, entity)
	}
	r.log.Debug("entity updated", "type", r.entityType, "key", r.keyOf(entity))
	return r.sortable(ctx, pc, entity)
}

// stored returns a copy of entity's values as the store holds them: the
// context snapshot when tracked, else a fresh read. An entity the store does
// not hold yet is its own snapshot.
func (r *Repository[T]) stored(ctx context.Context, pc *persistence.Context, entity *T) (*T, error) {
	if e, ok := pc.Entry(entity); ok {
		if orig, ok := e.Original().(*T); ok && orig != nil {
			cp := *orig
			return &cp, nil
		}
	}
	found, err := r.source.byKey(ctx, r.keyOf(entity))
	if err != nil {
		return nil, err
	}
	if found == nil {
		cp := *entity
		return &cp, nil
	}
	return found, nil
}

// InsertOrUpdate inserts entity when its key is unset or zero and updates
// it otherwise.
func (r *Repository[T]) InsertOrUpdate(ctx context.Context, entity *T) error {
	if entity == nil {
		return fmt.Errorf("%w: save of nil %s", types.ErrConfiguration, r.entityType)
	}
	zero, err := r.resolver.IsZeroKey(r.entityType, entity)
	if err != nil {
		return err
	}
	if zero {
		return r.Insert(ctx, entity)
	}
	return r.Update(ctx, entity)
}

// Delete marks entity Deleted. An instance that was added but never saved
// is simply dropped from the context.
func (r *Repository[T]) Delete(ctx context.Context, entity *T) error {
	pc, err := r.context(ctx)
	if err != nil {
		return err
	}
	deleted, err := r.delete(ctx, pc, entity)
	if err != nil || !deleted {
		return err
	}
	if err := r.sortable(ctx, pc, entity); err != nil {
		return err
	}
	r.afterDelete(ctx, entity)
	return nil
}

// delete runs the delete transition without the sortable callback. It
// reports whether the entity went to Deleted.
func (r *Repository[T]) delete(ctx context.Context, pc *persistence.Context, entity *T) (bool, error) {
	if entity == nil {
		return false, fmt.Errorf("%w: delete of nil %s", types.ErrConfiguration, r.entityType)
	}
	prev := pc.State(entity)
	if prev == types.Added {
		if err := pc.SetState(entity, types.Detached); err != nil {
			return false, err
		}
		r.afterDelete(ctx, entity)
		return false, nil
	}
	if prev == types.Deleted {
		return false, nil
	}
	if r.hooks.BeforeDelete != nil && !r.hooks.BeforeDelete(ctx, entity) {
		r.log.Debug("delete vetoed", "type", r.entityType, "key", r.keyOf(entity))
		return false, nil
	}
	if err := pc.SetState(entity, types.Deleted); err != nil {
		return false, err
	}
	if err := r.autoCommit(ctx, pc, entity, prev); err != nil {
		return false, err
	}
	r.log.Debug("entity deleted", "type", r.entityType, "key", r.keyOf(entity))
	return true, nil
}

func (r *Repository[T]) afterDelete(ctx context.Context, entity *T) {
	if r.hooks.AfterDelete != nil {
		r.hooks.AfterDelete(ctx, entity)
	}
}

// DeleteWhere deletes every entity matching where and returns how many were
// marked Deleted. Entities already Deleted are skipped. The sortable
// callback runs once, with the last entity deleted.
func (r *Repository[T]) DeleteWhere(ctx context.Context, where predicate.Predicate) (int, error) {
	items, err := r.GetEntities(ctx, where)
	if err != nil {
		return 0, err
	}
	pc, err := r.context(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	var last *T
	for _, e := range items {
		deleted, err := r.delete(ctx, pc, e)
		if err != nil {
			return n, err
		}
		if deleted {
			n++
			r.afterDelete(ctx, e)
			last = e
		}
	}
	if last != nil {
		if err := r.sortable(ctx, pc, last); err != nil {
			return n, err
		}
	}
	return n, nil
}

// DeleteByKey deletes the entity with the given key. A key matching nothing
// is types.ErrNotFound.
func (r *Repository[T]) DeleteByKey(ctx context.Context, key any) error {
	e, err := r.GetByKey(ctx, key)
	if err != nil {
		return err
	}
	return r.Delete(ctx, e)
}

// Refresh reloads entities from the store, discarding unsaved changes.
func (r *Repository[T]) Refresh(ctx context.Context, entities ...*T) error {
	pc, err := r.context(ctx)
	if err != nil {
		return err
	}
	for _, e := range entities {
		if err := pc.Refresh(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// SaveChanges commits every pending change in the provider's context, from
// this and any other repository sharing the provider. On failure the
// transaction is rolled back, the connection closed and the repository
// disposed before the error is returned.
func (r *Repository[T]) SaveChanges(ctx context.Context) error {
	if r.disposed {
		return types.ErrDisposed
	}
	if err := r.provider.SaveChanges(ctx); err != nil {
		r.log.Error("save changes failed", "type", r.entityType, "error", err)
		r.disposed = true
		return err
	}
	return nil
}

// Dispose releases the repository, and its provider when owned. A second
// call does nothing.
func (r *Repository[T]) Dispose(ctx context.Context) error {
	if r.disposed && !r.owns {
		return nil
	}
	r.disposed = true
	if r.owns {
		return r.provider.Dispose(ctx)
	}
	return nil
}

// autoCommit writes the change just made to entity unless the provider is
// buffered. A failed write puts entity back in its previous state.
func (r *Repository[T]) autoCommit(ctx context.Context, pc *persistence.Context, entity *T, prev types.EntityState) error {
	if r.provider.TransactionBuffered() {
		return nil
	}
	err := r.provider.Flush(ctx)
	if err == nil {
		return nil
	}
	r.log.Error("write failed", "type", r.entityType, "error", err)
	if prev == types.Detached {
		pc.Detach(entity)
	} else if serr := pc.SetState(entity, prev); serr != nil {
		err = errors.Join(err, serr)
	}
	return err
}

// sortable runs the entity's Sort callback if it has one.
func (r *Repository[T]) sortable(ctx context.Context, pc *persistence.Context, entity *T) error {
	s, ok := any(entity).(Sortable)
	if !ok {
		return nil
	}
	if err := s.Sort(ctx, pc); err != nil {
		return fmt.Errorf("sort %s: %w", r.entityType, err)
	}
	return nil
}
