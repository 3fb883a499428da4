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
	"fmt"
	"reflect"

	"github.com/tomoncle/entitygate/types"
)

// Entry is the tracking record of one entity instance.
type Entry struct {
	Entity any
	State  types.EntityState

	original any
}

// Original returns a copy of the entity's values as last read from or
// written to the store. It is nil for entries that were never stored.
func (e *Entry) Original() any { return e.original }

// Context is the unit of work of one session: the set of tracked entity
// instances and their lifecycle states. It is not safe for concurrent use.
type Context struct {
	store   StoreClient
	entries map[any]*Entry
	order   []any
}

func newContext(store StoreClient) *Context {
	return &Context{store: store, entries: make(map[any]*Entry)}
}

// Store returns the client the context reads and writes through.
func (c *Context) Store() StoreClient { return c.store }

// Entry returns the tracking record of entity, if any.
func (c *Context) Entry(entity any) (*Entry, bool) {
	e, ok := c.entries[entity]
	return e, ok
}

// State returns the state of entity; untracked instances are Detached.
func (c *Context) State(entity any) types.EntityState {
	if e, ok := c.entries[entity]; ok {
		return e.State
	}
	return types.Detached
}

// Attach starts tracking entity in the given state. Attaching an instance
// that is already tracked only changes its state. Unchanged and Modified
// entries take a snapshot of the current values as their original.
func (c *Context) Attach(entity any, state types.EntityState) (*Entry, error) {
	if err := checkEntity(entity); err != nil {
		return nil, err
	}
	if !state.IsValid() {
		return nil, fmt.Errorf("%w: invalid entity state %d", types.ErrConfiguration, state)
	}
	if e, ok := c.entries[entity]; ok {
		return e, c.SetState(entity, state)
	}
	if state == types.Detached {
		return &Entry{Entity: entity, State: types.Detached}, nil
	}
	e := &Entry{Entity: entity, State: state}
	if state != types.Added {
		e.original = cloneEntity(entity)
	}
	c.entries[entity] = e
	c.order = append(c.order, entity)
	return e, nil
}

// SetState moves entity to state, attaching it first when untracked.
// Deleting an Added entry abandons it: it becomes Detached, since it was
// never stored.
func (c *Context) SetState(entity any, state types.EntityState) error {
	e, ok := c.entries[entity]
	if !ok {
		_, err := c.Attach(entity, state)
		return err
	}
	if state == types.Deleted && e.State == types.Added {
		state = types.Detached
	}
	switch state {
	case types.Detached:
		c.detach(entity)
		e.State = types.Detached
	default:
		if !state.IsValid() {
			return fmt.Errorf("%w: invalid entity state %d", types.ErrConfiguration, state)
		}
		e.State = state
	}
	return nil
}

// Detach stops tracking entity.
func (c *Context) Detach(entity any) {
	if e, ok := c.entries[entity]; ok {
		e.State = types.Detached
		c.detach(entity)
	}
}

func (c *Context) detach(entity any) {
	delete(c.entries, entity)
	for i, k := range c.order {
		if k == entity {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Entries returns the tracked entries in the given states, in the order they
// were attached. With no states it returns every entry.
func (c *Context) Entries(states ...types.EntityState) []*Entry {
	out := make([]*Entry, 0, len(c.order))
	for _, k := range c.order {
		e := c.entries[k]
		if len(states) == 0 || hasState(states, e.State) {
			out = append(out, e)
		}
	}
	return out
}

// HasChanges reports whether any entry is Added, Modified or Deleted.
func (c *Context) HasChanges() bool {
	for _, e := range c.entries {
		if e.State.Pending() {
			return true
		}
	}
	return false
}

// Refresh discards entity's in-memory values and reloads them from the store.
// The entry becomes Unchanged.
func (c *Context) Refresh(ctx context.Context, entity any) error {
	if err := checkEntity(entity); err != nil {
		return err
	}
	if err := c.store.Refresh(ctx, entity); err != nil {
		return err
	}
	e, ok := c.entries[entity]
	if !ok {
		_, err := c.Attach(entity, types.Unchanged)
		return err
	}
	e.State = types.Unchanged
	e.original = cloneEntity(entity)
	return nil
}

// apply writes every pending entry to the store in attach order. States are
// left untouched; acceptChanges settles them once the writes are durable.
func (c *Context) apply(ctx context.Context) error {
	for _, e := range c.Entries(types.Added, types.Modified, types.Deleted) {
		var err error
		switch e.State {
		case types.Added:
			err = c.store.Insert(ctx, e.Entity)
		case types.Modified:
			err = c.store.Update(ctx, e.Entity)
		case types.Deleted:
			err = c.store.Delete(ctx, e.Entity)
		}
		if err != nil {
			return fmt.Errorf("%s %T: %w", e.State, e.Entity, err)
		}
	}
	return nil
}

// acceptChanges marks written entries as stored: Added and Modified become
// Unchanged with a fresh snapshot, Deleted entries are detached.
func (c *Context) acceptChanges() {
	for _, e := range c.Entries(types.Added, types.Modified, types.Deleted) {
		if e.State == types.Deleted {
			c.Detach(e.Entity)
			continue
		}
		e.State = types.Unchanged
		e.original = cloneEntity(e.Entity)
	}
}

func (c *Context) clear() {
	for _, e := range c.entries {
		e.State = types.Detached
	}
	c.entries = make(map[any]*Entry)
	c.order = nil
}

func hasState(states []types.EntityState, s types.EntityState) bool {
	for _, x := range states {
		if x == s {
			return true
		}
	}
	return false
}

func checkEntity(entity any) error {
	rv := reflect.ValueOf(entity)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%w: entity must be a non-nil pointer to a struct, got %T", types.ErrConfiguration, entity)
	}
	return nil
}

// cloneEntity returns a pointer to a shallow copy of the struct entity
// points to.
func cloneEntity(entity any) any {
	rv := reflect.ValueOf(entity)
	cp := reflect.New(rv.Elem().Type())
	cp.Elem().Set(rv.Elem())
	return cp.Interface()
}
