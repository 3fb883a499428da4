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
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomoncle/entitygate/types"
)

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Compile renders p as a filter string.
//
// Comparisons render as (Field=literal), (Field<>literal), (Left=Right) or
// (Field IS [NOT] NULL). And/Or join their operands with the keyword and wrap
// any operand that is itself composite in parentheses; the outermost node is
// left unwrapped:
//
//	Compile(And{Eq("Status", "Paid"), Ne("Id", 3)}) == "(Status='Paid') AND (Id<>3)"
//
// A nil predicate compiles to the empty filter. Any malformed node fails the
// whole compilation with types.ErrTranslation; no partial output is returned.
func Compile(p Predicate) (string, error) {
	if p == nil {
		return "", nil
	}
	return compileNode(p)
}

// MustCompile is like Compile but panics on error. Intended for predicates
// built from constants.
func MustCompile(p Predicate) string {
	s, err := Compile(p)
	if err != nil {
		panic(err)
	}
	return s
}

func compileNode(p Predicate) (string, error) {
	switch n := p.(type) {
	case Comparison:
		return compileComparison(n)
	case *Comparison:
		if n == nil {
			break
		}
		return compileComparison(*n)
	case And:
		return compileBinary("AND", n.Left, n.Right)
	case *And:
		if n == nil {
			break
		}
		return compileBinary("AND", n.Left, n.Right)
	case Or:
		return compileBinary("OR", n.Left, n.Right)
	case *Or:
		if n == nil {
			break
		}
		return compileBinary("OR", n.Left, n.Right)
	case Not:
		return compileNot(n.Inner)
	case *Not:
		if n == nil {
			break
		}
		return compileNot(n.Inner)
	case nil:
	default:
		return "", fmt.Errorf("%w: unsupported predicate node %T", types.ErrTranslation, p)
	}
	return "", fmt.Errorf("%w: missing predicate node", types.ErrTranslation)
}

func compileBinary(keyword string, left, right Predicate) (string, error) {
	l, err := compileOperandNode(left)
	if err != nil {
		return "", err
	}
	r, err := compileOperandNode(right)
	if err != nil {
		return "", err
	}
	return l + " " + keyword + " " + r, nil
}

func compileNot(inner Predicate) (string, error) {
	s, err := compileOperandNode(inner)
	if err != nil {
		return "", err
	}
	return "NOT " + s, nil
}

// compileOperandNode renders a child of a composite node.
func compileOperandNode(p Predicate) (string, error) {
	s, err := compileNode(p)
	if err != nil {
		return "", err
	}
	if isComparison(p) {
		return s, nil
	}
	return "(" + s + ")", nil
}

func isComparison(p Predicate) bool {
	switch p.(type) {
	case Comparison, *Comparison:
		return true
	}
	return false
}

func compileComparison(c Comparison) (string, error) {
	if err := checkFieldName(c.Field); err != nil {
		return "", err
	}
	if ref, ok := c.Value.(FieldRef); ok {
		if err := checkFieldName(ref.Name); err != nil {
			return "", err
		}
		return "(" + c.Field + c.Op.Token() + ref.Name + ")", nil
	}
	v, err := Resolve(c.Value)
	if err != nil {
		return "", err
	}
	if IsNull(v) {
		if c.Op == OpNotEqual {
			return "(" + c.Field + " IS NOT NULL)", nil
		}
		return "(" + c.Field + " IS NULL)", nil
	}
	lit, err := FormatLiteral(v)
	if err != nil {
		return "", fmt.Errorf("%w (field %s)", err, c.Field)
	}
	return "(" + c.Field + c.Op.Token() + lit + ")", nil
}

func checkFieldName(name string) error {
	if !fieldNamePattern.MatchString(name) {
		return fmt.Errorf("%w: invalid field name %q", types.ErrTranslation, name)
	}
	return nil
}

// IsNull reports whether v compares as NULL: nil itself or a nil pointer,
// interface, map or slice.
func IsNull(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

// FormatLiteral renders a constant the way it appears in a filter string.
// Text is single quoted with embedded quotes doubled, numbers are bare and
// booleans render as 1 or 0.
func FormatLiteral(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return quote(x), nil
	case uuid.UUID:
		return quote(x.String()), nil
	case time.Time:
		return quote(x.Format(time.RFC3339Nano)), nil
	case bool:
		if x {
			return "1", nil
		}
		return "0", nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return "", fmt.Errorf("%w: nil literal", types.ErrTranslation)
		}
		return FormatLiteral(rv.Elem().Interface())
	}

	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "", fmt.Errorf("%w: non-finite number %v", types.ErrTranslation, f)
		}
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	case reflect.String:
		return quote(rv.String()), nil
	case reflect.Bool:
		return FormatLiteral(rv.Bool())
	}
	if s, ok := v.(fmt.Stringer); ok {
		return quote(s.String()), nil
	}
	return "", fmt.Errorf("%w: unsupported literal type %T", types.ErrTranslation, v)
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
