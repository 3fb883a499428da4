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

package predicate

import (
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/tomoncle/entitygate/types"
)

// Evaluate tests p against an entity struct or pointer to struct. A nil
// predicate matches everything. Numbers compare by value across Go types,
// and text compares against uuid or numeric fields by parsing.
func Evaluate(p Predicate, entity any) (bool, error) {
	if p == nil {
		return true, nil
	}
	rv := reflect.ValueOf(entity)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return false, fmt.Errorf("%w: cannot evaluate against nil entity", types.ErrTranslation)
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return false, fmt.Errorf("%w: cannot evaluate against %T", types.ErrTranslation, entity)
	}
	return evalNode(p, rv)
}

func evalNode(p Predicate, rv reflect.Value) (bool, error) {
	switch n := p.(type) {
	case Comparison:
		return evalComparison(n, rv)
	case *Comparison:
		if n != nil {
			return evalComparison(*n, rv)
		}
	case And:
		return evalAnd(n.Left, n.Right, rv)
	case *And:
		if n != nil {
			return evalAnd(n.Left, n.Right, rv)
		}
	case Or:
		return evalOr(n.Left, n.Right, rv)
	case *Or:
		if n != nil {
			return evalOr(n.Left, n.Right, rv)
		}
	case Not:
		ok, err := evalNode(n.Inner, rv)
		return !ok, err
	case *Not:
		if n != nil {
			ok, err := evalNode(n.Inner, rv)
			return !ok, err
		}
	case nil:
	default:
		return false, fmt.Errorf("%w: unsupported predicate node %T", types.ErrTranslation, p)
	}
	return false, fmt.Errorf("%w: missing predicate node", types.ErrTranslation)
}

func evalAnd(l, r Predicate, rv reflect.Value) (bool, error) {
	ok, err := evalNode(l, rv)
	if err != nil || !ok {
		return false, err
	}
	return evalNode(r, rv)
}

func evalOr(l, r Predicate, rv reflect.Value) (bool, error) {
	ok, err := evalNode(l, rv)
	if err != nil || ok {
		return ok, err
	}
	return evalNode(r, rv)
}

func evalComparison(c Comparison, rv reflect.Value) (bool, error) {
	left, err := fieldValue(rv, c.Field)
	if err != nil {
		return false, err
	}
	var right any
	if ref, ok := c.Value.(FieldRef); ok {
		if right, err = fieldValue(rv, ref.Name); err != nil {
			return false, err
		}
	} else if right, err = Resolve(c.Value); err != nil {
		return false, err
	}
	eq, err := Equal(left, right)
	if err != nil {
		return false, err
	}
	if c.Op == OpNotEqual {
		return !eq, nil
	}
	return eq, nil
}

func fieldValue(rv reflect.Value, name string) (any, error) {
	if err := checkFieldName(name); err != nil {
		return nil, err
	}
	f := rv.FieldByName(name)
	if !f.IsValid() {
		return nil, fmt.Errorf("%w: %s has no field %q", types.ErrTranslation, rv.Type(), name)
	}
	if !f.CanInterface() {
		return nil, fmt.Errorf("%w: field %s.%s is not exported", types.ErrTranslation, rv.Type(), name)
	}
	return f.Interface(), nil
}

// Equal compares two scalar values the way a filter string would: numbers
// by value, text against uuid and numbers by parsing, nil pointers as NULL.
func Equal(a, b any) (bool, error) {
	a, b = deref(a), deref(b)
	if a == nil || b == nil {
		return a == nil && b == nil, nil
	}

	if ua, ok := a.(uuid.UUID); ok {
		return equalUUID(ua, b)
	}
	if ub, ok := b.(uuid.UUID); ok {
		return equalUUID(ub, a)
	}
	if ta, ok := a.(time.Time); ok {
		return equalTime(ta, b)
	}
	if tb, ok := b.(time.Time); ok {
		return equalTime(tb, a)
	}

	na, aNum := toNumber(a)
	nb, bNum := toNumber(b)
	switch {
	case aNum && bNum:
		return na.equal(nb), nil
	case aNum:
		if s, ok := asString(b); ok {
			parsed, ok := parseNumeric(s)
			return ok && na.equal(parsed), nil
		}
	case bNum:
		if s, ok := asString(a); ok {
			parsed, ok := parseNumeric(s)
			return ok && nb.equal(parsed), nil
		}
	}

	if sa, ok := asString(a); ok {
		if sb, ok := asString(b); ok {
			return sa == sb, nil
		}
	}

	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if rb.Type().ConvertibleTo(ra.Type()) {
		return reflect.DeepEqual(a, rb.Convert(ra.Type()).Interface()), nil
	}
	return false, fmt.Errorf("%w: cannot compare %T with %T", types.ErrTranslation, a, b)
}

func deref(v any) any {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	return rv.Interface()
}

func equalUUID(u uuid.UUID, other any) (bool, error) {
	switch o := other.(type) {
	case uuid.UUID:
		return u == o, nil
	case []byte:
		parsed, err := uuid.FromBytes(o)
		return err == nil && parsed == u, nil
	}
	if s, ok := asString(other); ok {
		parsed, err := uuid.Parse(s)
		return err == nil && parsed == u, nil
	}
	return false, fmt.Errorf("%w: cannot compare uuid with %T", types.ErrTranslation, other)
}

func equalTime(t time.Time, other any) (bool, error) {
	if o, ok := other.(time.Time); ok {
		return t.Equal(o), nil
	}
	if s, ok := asString(other); ok {
		parsed, err := time.Parse(time.RFC3339Nano, s)
		return err == nil && parsed.Equal(t), nil
	}
	return false, fmt.Errorf("%w: cannot compare time with %T", types.ErrTranslation, other)
}

func asString(v any) (string, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.String {
		return rv.String(), true
	}
	return "", false
}

type number struct {
	kind byte // 'i', 'u' or 'f'
	i    int64
	u    uint64
	f    float64
}

func toNumber(v any) (number, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return number{kind: 'i', i: rv.Int()}, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return number{kind: 'u', u: rv.Uint()}, true
	case reflect.Float32, reflect.Float64:
		return number{kind: 'f', f: rv.Float()}, true
	case reflect.Bool:
		if rv.Bool() {
			return number{kind: 'i', i: 1}, true
		}
		return number{kind: 'i'}, true
	}
	return number{}, false
}

func parseNumeric(s string) (number, bool) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return number{kind: 'i', i: i}, true
	}
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return number{kind: 'u', u: u}, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return number{kind: 'f', f: f}, true
	}
	return number{}, false
}

func (n number) float() float64 {
	switch n.kind {
	case 'i':
		return float64(n.i)
	case 'u':
		return float64(n.u)
	}
	return n.f
}

func (n number) equal(o number) bool {
	switch {
	case n.kind == 'f' || o.kind == 'f':
		return n.float() == o.float()
	case n.kind == o.kind && n.kind == 'i':
		return n.i == o.i
	case n.kind == o.kind:
		return n.u == o.u
	case n.kind == 'i':
		return n.i >= 0 && uint64(n.i) == o.u
	default:
		return o.i >= 0 && uint64(o.i) == n.u
	}
}
