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
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/tomoncle/entitygate/types"
)

// Coerce converts value to the type of the described key field.
//
// Text keys accept any value and store its string form. UUID keys accept a
// parseable string or 16 raw bytes. Numeric keys accept other numeric types
// when the value fits, and decimal strings.
func Coerce(desc FieldDescriptor, value any) (any, error) {
	target := desc.Type
	for target.Kind() == reflect.Ptr {
		target = target.Elem()
	}

	rv := reflect.ValueOf(value)
	for rv.IsValid() && rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			rv = reflect.Value{}
			break
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil, fmt.Errorf("%w: nil key for %s", types.ErrTranslation, desc.Name)
	}
	if rv.Type() == target {
		return rv.Interface(), nil
	}

	switch desc.Kind {
	case types.KindString:
		s := fmt.Sprint(rv.Interface())
		return reflect.ValueOf(s).Convert(target).Interface(), nil
	case types.KindUUID:
		return coerceUUID(desc, rv)
	}

	if desc.Kind.Numeric() || isNumberKind(target.Kind()) {
		return coerceNumber(desc, target, rv)
	}

	if rv.Type().ConvertibleTo(target) {
		return rv.Convert(target).Interface(), nil
	}
	return nil, mismatch(desc, rv)
}

func coerceUUID(desc FieldDescriptor, rv reflect.Value) (any, error) {
	switch v := rv.Interface().(type) {
	case string:
		id, err := uuid.Parse(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("%w: key %s: %w", types.ErrTranslation, desc.Name, err)
		}
		return id, nil
	case []byte:
		id, err := uuid.FromBytes(v)
		if err != nil {
			return nil, fmt.Errorf("%w: key %s: %w", types.ErrTranslation, desc.Name, err)
		}
		return id, nil
	case [16]byte:
		return uuid.UUID(v), nil
	}
	if rv.Kind() == reflect.String {
		return coerceUUID(desc, reflect.ValueOf(rv.String()))
	}
	return nil, mismatch(desc, rv)
}

func coerceNumber(desc FieldDescriptor, target reflect.Type, rv reflect.Value) (any, error) {
	out := reflect.New(target).Elem()

	if rv.Kind() == reflect.String {
		s := strings.TrimSpace(rv.String())
		switch {
		case isIntKind(target.Kind()):
			n, err := strconv.ParseInt(s, 10, target.Bits())
			if err != nil {
				return nil, fmt.Errorf("%w: key %s: %w", types.ErrTranslation, desc.Name, err)
			}
			out.SetInt(n)
		case isUintKind(target.Kind()):
			n, err := strconv.ParseUint(s, 10, target.Bits())
			if err != nil {
				return nil, fmt.Errorf("%w: key %s: %w", types.ErrTranslation, desc.Name, err)
			}
			out.SetUint(n)
		default:
			n, err := strconv.ParseFloat(s, target.Bits())
			if err != nil {
				return nil, fmt.Errorf("%w: key %s: %w", types.ErrTranslation, desc.Name, err)
			}
			out.SetFloat(n)
		}
		return out.Interface(), nil
	}

	switch {
	case isIntKind(rv.Kind()):
		n := rv.Int()
		switch {
		case isIntKind(target.Kind()) && !out.OverflowInt(n):
			out.SetInt(n)
		case isUintKind(target.Kind()) && n >= 0 && !out.OverflowUint(uint64(n)):
			out.SetUint(uint64(n))
		case isFloatKind(target.Kind()):
			out.SetFloat(float64(n))
		default:
			return nil, overflow(desc, rv)
		}
	case isUintKind(rv.Kind()):
		n := rv.Uint()
		switch {
		case isUintKind(target.Kind()) && !out.OverflowUint(n):
			out.SetUint(n)
		case isIntKind(target.Kind()) && n <= math.MaxInt64 && !out.OverflowInt(int64(n)):
			out.SetInt(int64(n))
		case isFloatKind(target.Kind()):
			out.SetFloat(float64(n))
		default:
			return nil, overflow(desc, rv)
		}
	case isFloatKind(rv.Kind()):
		f := rv.Float()
		switch {
		case isFloatKind(target.Kind()):
			out.SetFloat(f)
		case f != math.Trunc(f):
			return nil, overflow(desc, rv)
		case isIntKind(target.Kind()) && f >= math.MinInt64 && f < math.MaxInt64 && !out.OverflowInt(int64(f)):
			out.SetInt(int64(f))
		case isUintKind(target.Kind()) && f >= 0 && f < math.MaxUint64 && !out.OverflowUint(uint64(f)):
			out.SetUint(uint64(f))
		default:
			return nil, overflow(desc, rv)
		}
	default:
		return nil, mismatch(desc, rv)
	}
	return out.Interface(), nil
}

func mismatch(desc FieldDescriptor, rv reflect.Value) error {
	return fmt.Errorf("%w: key %s of type %s cannot take a %s", types.ErrTranslation, desc.Name, desc.Type, rv.Type())
}

func overflow(desc FieldDescriptor, rv reflect.Value) error {
	return fmt.Errorf("%w: key %s of type %s cannot hold %v", types.ErrTranslation, desc.Name, desc.Type, rv.Interface())
}

func isIntKind(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUintKind(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

func isFloatKind(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

func isNumberKind(k reflect.Kind) bool {
	return isIntKind(k) || isUintKind(k) || isFloatKind(k)
}
