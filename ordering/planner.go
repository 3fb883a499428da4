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

package ordering

import (
	"bytes"
	"cmp"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/tomoncle/entitygate/types"
)

// comparator orders two values of one scalar kind.
type comparator func(a, b reflect.Value) int

// kindTable is the closed set of orderable key kinds. A kind missing here is
// a configuration error when a plan is requested for it.
var kindTable = map[types.ScalarKind]comparator{
	types.KindInt:     compareInt,
	types.KindInt32:   compareInt,
	types.KindInt64:   compareInt,
	types.KindUint:    compareUint,
	types.KindUint32:  compareUint,
	types.KindUint64:  compareUint,
	types.KindFloat64: compareFloat,
	types.KindString:  compareString,
	types.KindUUID:    compareUUID,
}

func compareInt(a, b reflect.Value) int    { return cmp.Compare(a.Int(), b.Int()) }
func compareUint(a, b reflect.Value) int   { return cmp.Compare(a.Uint(), b.Uint()) }
func compareFloat(a, b reflect.Value) int  { return cmp.Compare(a.Float(), b.Float()) }
func compareString(a, b reflect.Value) int { return cmp.Compare(a.String(), b.String()) }

func compareUUID(a, b reflect.Value) int {
	ua := a.Interface().(uuid.UUID)
	ub := b.Interface().(uuid.UUID)
	return bytes.Compare(ua[:], ub[:])
}

var timeType = reflect.TypeOf(time.Time{})

func compareTime(a, b reflect.Value) int {
	return a.Interface().(time.Time).Compare(b.Interface().(time.Time))
}

func compareBool(a, b reflect.Value) int {
	switch {
	case a.Bool() == b.Bool():
		return 0
	case !a.Bool():
		return -1
	}
	return 1
}

// sortComparator widens the key table for sort terms: any field of a
// numeric, string, bool or time type can appear in a sort string.
func sortComparator(t reflect.Type) (comparator, bool) {
	if c, ok := kindTable[types.KindOf(t)]; ok {
		return c, true
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == timeType {
		return compareTime, true
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return compareInt, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return compareUint, true
	case reflect.Float32, reflect.Float64:
		return compareFloat, true
	case reflect.String:
		return compareString, true
	case reflect.Bool:
		return compareBool, true
	}
	return nil, false
}

// Orderable reports whether values of kind can be planned.
func Orderable(kind types.ScalarKind) bool {
	_, ok := kindTable[kind]
	return ok
}

// Expression orders entities of one type by a single field.
type Expression struct {
	Field string
	Kind  types.ScalarKind
	Desc  bool

	owner reflect.Type
	index []int
	cmp   comparator
}

// PlanOrdering builds an ascending ordering over the named key field of
// entityType, dispatched on the field's scalar kind. Only the closed key
// kind table is accepted.
func PlanOrdering(entityType reflect.Type, field string) (Expression, error) {
	st, f, err := lookup(entityType, field)
	if err != nil {
		return Expression{}, err
	}
	kind := types.KindOf(f.Type)
	c, ok := kindTable[kind]
	if !ok {
		return Expression{}, fmt.Errorf("%w: field %s.%s of type %s has no ordering", types.ErrConfiguration, st, field, f.Type)
	}
	return Expression{Field: f.Name, Kind: kind, owner: st, index: f.Index, cmp: c}, nil
}

// PlanSort builds an ascending ordering over any sortable field of
// entityType. Besides the key kinds it accepts small integers, float32,
// bool and time.Time.
func PlanSort(entityType reflect.Type, field string) (Expression, error) {
	st, f, err := lookup(entityType, field)
	if err != nil {
		return Expression{}, err
	}
	c, ok := sortComparator(f.Type)
	if !ok {
		return Expression{}, fmt.Errorf("%w: field %s.%s of type %s cannot be sorted", types.ErrConfiguration, st, field, f.Type)
	}
	return Expression{Field: f.Name, Kind: types.KindOf(f.Type), owner: st, index: f.Index, cmp: c}, nil
}

func lookup(entityType reflect.Type, field string) (reflect.Type, reflect.StructField, error) {
	st := entityType
	for st != nil && st.Kind() == reflect.Ptr {
		st = st.Elem()
	}
	if st == nil || st.Kind() != reflect.Struct {
		return nil, reflect.StructField{}, fmt.Errorf("%w: cannot order %v", types.ErrConfiguration, entityType)
	}
	f, ok := st.FieldByName(field)
	if !ok || !f.IsExported() {
		return nil, reflect.StructField{}, fmt.Errorf("%w: %s has no exported field %q to order by", types.ErrConfiguration, st, field)
	}
	return st, f, nil
}

// Descending returns a copy of e ordering from high to low.
func (e Expression) Descending() Expression {
	e.Desc = true
	return e
}

// SortField returns e as a single sort term.
func (e Expression) SortField() SortField {
	return SortField{Field: e.Field, Desc: e.Desc}
}

// Compare orders two entities of the planned type. Nil pointer fields sort
// first.
func (e Expression) Compare(a, b any) (int, error) {
	va, err := e.value(a)
	if err != nil {
		return 0, err
	}
	vb, err := e.value(b)
	if err != nil {
		return 0, err
	}
	var c int
	switch {
	case !va.IsValid() && !vb.IsValid():
		c = 0
	case !va.IsValid():
		c = -1
	case !vb.IsValid():
		c = 1
	default:
		c = e.cmp(va, vb)
	}
	if e.Desc {
		c = -c
	}
	return c, nil
}

func (e Expression) value(entity any) (reflect.Value, error) {
	if e.cmp == nil {
		return reflect.Value{}, fmt.Errorf("%w: ordering on %s was not planned", types.ErrConfiguration, e.Field)
	}
	rv := reflect.ValueOf(entity)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return reflect.Value{}, fmt.Errorf("%w: cannot order nil entity", types.ErrConfiguration)
		}
		rv = rv.Elem()
	}
	if rv.Type() != e.owner {
		return reflect.Value{}, fmt.Errorf("%w: %s is not a %s", types.ErrConfiguration, rv.Type(), e.owner)
	}
	f := rv.FieldByIndex(e.index)
	for f.Kind() == reflect.Ptr {
		if f.IsNil() {
			return reflect.Value{}, nil
		}
		f = f.Elem()
	}
	return f, nil
}

// Plan builds one Expression per term of s, in order.
func Plan(entityType reflect.Type, s Sort) ([]Expression, error) {
	out := make([]Expression, 0, len(s))
	for _, term := range s {
		e, err := PlanSort(entityType, term.Field)
		if err != nil {
			return nil, err
		}
		e.Desc = term.Desc
		out = append(out, e)
	}
	return out, nil
}

// CompareBy applies the expressions in order until one separates a and b.
func CompareBy(exprs []Expression, a, b any) (int, error) {
	for _, e := range exprs {
		c, err := e.Compare(a, b)
		if err != nil || c != 0 {
			return c, err
		}
	}
	return 0, nil
}
