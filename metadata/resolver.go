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

package metadata

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/tomoncle/entitygate/predicate"
	"github.com/tomoncle/entitygate/types"
)

// TagName is the struct tag that marks an identity field: `entity:"key"`.
const TagName = "entity"

// KeySpec is one row of the registration table.
type KeySpec struct {
	// Field is the Go name of the identity field.
	Field string
}

// FieldDescriptor describes a resolved identity field.
type FieldDescriptor struct {
	Name  string
	Index []int
	Type  reflect.Type
	Kind  types.ScalarKind

	owner reflect.Type
}

// Owner returns the struct type the field belongs to.
func (d FieldDescriptor) Owner() reflect.Type { return d.owner }

// KeySource reports an entity type's identity field when neither the
// registration table nor a struct tag names one. Store clients implement it.
type KeySource interface {
	KeyFieldName(entityType reflect.Type) (string, error)
}

// Resolver locates identity fields. Lookups go through the registration
// table first, then the `entity:"key"` tag, then the fallback KeySource.
// Resolved descriptors are cached per type.
type Resolver struct {
	mu       sync.RWMutex
	table    map[reflect.Type]KeySpec
	resolved map[reflect.Type]FieldDescriptor
	fallback KeySource
}

// NewResolver returns a resolver. fallback may be nil.
func NewResolver(fallback KeySource) *Resolver {
	return &Resolver{
		table:    make(map[reflect.Type]KeySpec),
		resolved: make(map[reflect.Type]FieldDescriptor),
		fallback: fallback,
	}
}

// SetFallback replaces the KeySource consulted for unregistered types.
func (r *Resolver) SetFallback(fallback KeySource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = fallback
}

// Register adds an explicit entry for entityType. The field is validated
// immediately.
func (r *Resolver) Register(entityType reflect.Type, spec KeySpec) error {
	st, err := structType(entityType)
	if err != nil {
		return err
	}
	desc, err := describe(st, spec.Field)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.table[st] = spec
	r.resolved[st] = desc
	return nil
}

// Registered returns the registration table entry for entityType.
func (r *Resolver) Registered(entityType reflect.Type) (KeySpec, bool) {
	st, err := structType(entityType)
	if err != nil {
		return KeySpec{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.table[st]
	return spec, ok
}

// Register adds an explicit entry for T.
func Register[T any](r *Resolver, field string) error {
	return r.Register(reflect.TypeOf((*T)(nil)).Elem(), KeySpec{Field: field})
}

// ResolveKeyField returns the identity field of entityType, which may be a
// struct type or a pointer to one.
func (r *Resolver) ResolveKeyField(entityType reflect.Type) (FieldDescriptor, error) {
	st, err := structType(entityType)
	if err != nil {
		return FieldDescriptor{}, err
	}

	r.mu.RLock()
	desc, ok := r.resolved[st]
	fallback := r.fallback
	r.mu.RUnlock()
	if ok {
		return desc, nil
	}

	name, err := tagged(st)
	if err != nil {
		return FieldDescriptor{}, err
	}
	if name == "" {
		if fallback == nil {
			return FieldDescriptor{}, fmt.Errorf("%w: %s has no field tagged %s:\"key\" and no key source is configured", types.ErrConfiguration, st, TagName)
		}
		if name, err = fallback.KeyFieldName(st); err != nil {
			return FieldDescriptor{}, fmt.Errorf("%w: %s: %w", types.ErrConfiguration, st, err)
		}
	}

	if desc, err = describe(st, name); err != nil {
		return FieldDescriptor{}, err
	}
	r.mu.Lock()
	r.resolved[st] = desc
	r.mu.Unlock()
	return desc, nil
}

// KeyFieldName is ResolveKeyField reduced to the field name.
func (r *Resolver) KeyFieldName(entityType reflect.Type) (string, error) {
	desc, err := r.ResolveKeyField(entityType)
	if err != nil {
		return "", err
	}
	return desc.Name, nil
}

// BuildEqualityPredicate returns Key == value with value coerced to the key
// field's type.
func (r *Resolver) BuildEqualityPredicate(entityType reflect.Type, value any) (predicate.Predicate, error) {
	desc, err := r.ResolveKeyField(entityType)
	if err != nil {
		return nil, err
	}
	v, err := Coerce(desc, value)
	if err != nil {
		return nil, err
	}
	return predicate.Eq(desc.Name, v), nil
}

// ExtractKeyValue reads the identity field of instance.
func (r *Resolver) ExtractKeyValue(entityType reflect.Type, instance any) (any, error) {
	desc, err := r.ResolveKeyField(entityType)
	if err != nil {
		return nil, err
	}
	rv := reflect.ValueOf(instance)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, fmt.Errorf("%w: cannot read key of nil %s", types.ErrConfiguration, entityType)
		}
		rv = rv.Elem()
	}
	if rv.Type() != desc.owner && !rv.Type().AssignableTo(desc.owner) {
		return nil, fmt.Errorf("%w: instance %s is not a %s", types.ErrConfiguration, rv.Type(), entityType)
	}
	return rv.FieldByIndex(desc.Index).Interface(), nil
}

// IsZeroKey reports whether the identity value of instance is absent or the
// zero value of its type.
func (r *Resolver) IsZeroKey(entityType reflect.Type, instance any) (bool, error) {
	v, err := r.ExtractKeyValue(entityType, instance)
	if err != nil {
		return false, err
	}
	if v == nil {
		return true, nil
	}
	return reflect.ValueOf(v).IsZero(), nil
}

func structType(t reflect.Type) (reflect.Type, error) {
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: entity type %v is not a struct", types.ErrConfiguration, t)
	}
	return t, nil
}

func tagged(st reflect.Type) (string, error) {
	var found []string
	for _, f := range reflect.VisibleFields(st) {
		if !f.IsExported() {
			continue
		}
		for _, opt := range strings.Split(f.Tag.Get(TagName), ",") {
			if strings.TrimSpace(opt) == "key" {
				found = append(found, f.Name)
				break
			}
		}
	}
	switch len(found) {
	case 0:
		return "", nil
	case 1:
		return found[0], nil
	}
	return "", fmt.Errorf("%w: %s has %d identity fields %v, want exactly one", types.ErrConfiguration, st, len(found), found)
}

func describe(st reflect.Type, name string) (FieldDescriptor, error) {
	if name == "" {
		return FieldDescriptor{}, fmt.Errorf("%w: %s: empty key field name", types.ErrConfiguration, st)
	}
	f, ok := st.FieldByName(name)
	if !ok || !f.IsExported() {
		return FieldDescriptor{}, fmt.Errorf("%w: %s has no exported field %q", types.ErrConfiguration, st, name)
	}
	return FieldDescriptor{
		Name:  f.Name,
		Index: f.Index,
		Type:  f.Type,
		Kind:  types.KindOf(f.Type),
		owner: st,
	}, nil
}
