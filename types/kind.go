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

package types

import (
	"reflect"

	"github.com/google/uuid"
)

// ScalarKind is the closed set of key field types the gateway can order and
// compare. Anything else maps to KindUnknown.
type ScalarKind int

const (
	KindUnknown ScalarKind = iota
	KindInt
	KindInt32
	KindInt64
	KindUint
	KindUint32
	KindUint64
	KindFloat64
	KindString
	KindUUID
)

var _ BaseEnum = KindUnknown

var uuidType = reflect.TypeOf(uuid.UUID{})

var scalarKindNames = map[ScalarKind][2]string{
	KindInt:     {"int", "platform signed integer"},
	KindInt32:   {"int32", "32-bit signed integer"},
	KindInt64:   {"int64", "64-bit signed integer"},
	KindUint:    {"uint", "platform unsigned integer"},
	KindUint32:  {"uint32", "32-bit unsigned integer"},
	KindUint64:  {"uint64", "64-bit unsigned integer"},
	KindFloat64: {"float64", "double precision float"},
	KindString:  {"string", "text identifier"},
	KindUUID:    {"uuid", "RFC 4122 identifier"},
}

// KindOf maps a Go type to its scalar kind. Pointer types resolve to the kind
// of their element.
func KindOf(t reflect.Type) ScalarKind {
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil {
		return KindUnknown
	}
	if t == uuidType {
		return KindUUID
	}
	switch t.Kind() {
	case reflect.Int:
		return KindInt
	case reflect.Int32:
		return KindInt32
	case reflect.Int64:
		return KindInt64
	case reflect.Uint:
		return KindUint
	case reflect.Uint32:
		return KindUint32
	case reflect.Uint64:
		return KindUint64
	case reflect.Float64:
		return KindFloat64
	case reflect.String:
		return KindString
	}
	return KindUnknown
}

func (k ScalarKind) IsValid() bool {
	_, ok := scalarKindNames[k]
	return ok
}

func (k ScalarKind) Number() int {
	if !k.IsValid() {
		return IllegalValue
	}
	return int(k)
}

func (k ScalarKind) Name() string {
	if n, ok := scalarKindNames[k]; ok {
		return n[0]
	}
	return IllegalName
}

func (k ScalarKind) Desc() string {
	if n, ok := scalarKindNames[k]; ok {
		return n[1]
	}
	return IllegalDesc
}

func (k ScalarKind) String() string { return k.Name() }

// Numeric reports whether values of the kind compare as numbers.
func (k ScalarKind) Numeric() bool {
	switch k {
	case KindInt, KindInt32, KindInt64, KindUint, KindUint32, KindUint64, KindFloat64:
		return true
	}
	return false
}
