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

	"github.com/tomoncle/entitygate/types"
)

// Predicate is a boolean condition over the fields of one entity type.
//
// This is a sealed interface: only Comparison, And, Or and Not implement it,
// so compilers and evaluators can switch over it exhaustively. Trees are
// immutable once built.
type Predicate interface {
	predicateNode()
}

// Operand is the right-hand side of a Comparison.
//
// Operand types:
//   - Literal: a constant value
//   - FieldRef: another field of the same entity
//   - Captured: an outer-scope variable read when the tree is compiled
type Operand interface {
	operandNode()
}

// Op is a comparison operator.
type Op int

const (
	OpEqual Op = iota
	OpNotEqual
)

// Token returns the textual operator used in filter strings.
func (o Op) Token() string {
	if o == OpNotEqual {
		return "<>"
	}
	return "="
}

func (o Op) String() string { return o.Token() }

// Comparison compares a field against an operand.
type Comparison struct {
	Op    Op
	Field string
	Value Operand
}

func (Comparison) predicateNode() {}

// And is satisfied when both sides are.
type And struct {
	Left, Right Predicate
}

func (And) predicateNode() {}

// Or is satisfied when either side is.
type Or struct {
	Left, Right Predicate
}

func (Or) predicateNode() {}

// Not negates Inner.
type Not struct {
	Inner Predicate
}

func (Not) predicateNode() {}

// Literal is a constant operand. A nil Value compares against NULL.
type Literal struct {
	Value any
}

func (Literal) operandNode() {}

// FieldRef references another field of the entity.
type FieldRef struct {
	Name string
}

func (FieldRef) operandNode() {}

// Captured references a variable outside the tree. Ref must be a non-nil
// pointer; the pointee is read each time the tree is compiled or evaluated.
type Captured struct {
	Name string
	Ref  any
}

func (Captured) operandNode() {}

// Eq builds field == value. Operands are passed through unchanged, any
// other value becomes a Literal.
func Eq(field string, value any) Predicate {
	return Comparison{Op: OpEqual, Field: field, Value: operandOf(value)}
}

// Ne builds field <> value.
func Ne(field string, value any) Predicate {
	return Comparison{Op: OpNotEqual, Field: field, Value: operandOf(value)}
}

// EqField builds left == right over two fields.
func EqField(left, right string) Predicate {
	return Comparison{Op: OpEqual, Field: left, Value: FieldRef{Name: right}}
}

// NeField builds left <> right over two fields.
func NeField(left, right string) Predicate {
	return Comparison{Op: OpNotEqual, Field: left, Value: FieldRef{Name: right}}
}

// Capture wraps a pointer to an outer variable.
func Capture(name string, ref any) Operand {
	return Captured{Name: name, Ref: ref}
}

func Conj(left, right Predicate) Predicate { return And{Left: left, Right: right} }

func Disj(left, right Predicate) Predicate { return Or{Left: left, Right: right} }

func Negate(inner Predicate) Predicate { return Not{Inner: inner} }

// All folds the predicates left to right with And. Nil entries are skipped;
// All() of nothing is nil, meaning no filter.
func All(ps ...Predicate) Predicate {
	return fold(ps, Conj)
}

// Any folds the predicates left to right with Or.
func Any(ps ...Predicate) Predicate {
	return fold(ps, Disj)
}

func fold(ps []Predicate, join func(l, r Predicate) Predicate) Predicate {
	var out Predicate
	for _, p := range ps {
		if p == nil {
			continue
		}
		if out == nil {
			out = p
			continue
		}
		out = join(out, p)
	}
	return out
}

func operandOf(v any) Operand {
	if o, ok := v.(Operand); ok {
		return o
	}
	return Literal{Value: v}
}

// Resolve returns the constant value of an operand. FieldRef operands have no
// constant value and fail.
func Resolve(o Operand) (any, error) {
	switch v := o.(type) {
	case Literal:
		return v.Value, nil
	case *Literal:
		return v.Value, nil
	case Captured:
		return resolveCaptured(v)
	case *Captured:
		return resolveCaptured(*v)
	case nil:
		return nil, fmt.Errorf("%w: missing operand", types.ErrTranslation)
	default:
		return nil, fmt.Errorf("%w: operand %T has no constant value", types.ErrTranslation, o)
	}
}

func resolveCaptured(c Captured) (any, error) {
	if c.Ref == nil {
		return nil, fmt.Errorf("%w: captured value %q is missing", types.ErrTranslation, c.Name)
	}
	rv := reflect.ValueOf(c.Ref)
	if rv.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("%w: captured value %q must be a pointer, got %T", types.ErrTranslation, c.Name, c.Ref)
	}
	if rv.IsNil() {
		return nil, fmt.Errorf("%w: captured value %q is missing", types.ErrTranslation, c.Name)
	}
	return rv.Elem().Interface(), nil
}

// Fields returns the field names referenced by p in first-seen order.
func Fields(p Predicate) []string {
	var out []string
	seen := map[string]bool{}
	add := func(n string) {
		if n != "" && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	var walk func(Predicate)
	walk = func(p Predicate) {
		p, _ = Unwrap(p)
		switch n := p.(type) {
		case Comparison:
			add(n.Field)
			if f, ok := n.Value.(FieldRef); ok {
				add(f.Name)
			}
		case And:
			walk(n.Left)
			walk(n.Right)
		case Or:
			walk(n.Left)
			walk(n.Right)
		case Not:
			walk(n.Inner)
		}
	}
	walk(p)
	return out
}

// Unwrap returns the value form of a node built by address, so translators
// outside this package only need to switch over the four value types.
func Unwrap(p Predicate) (Predicate, error) {
	switch n := p.(type) {
	case Comparison, And, Or, Not:
		return n, nil
	case *Comparison:
		if n != nil {
			return *n, nil
		}
	case *And:
		if n != nil {
			return *n, nil
		}
	case *Or:
		if n != nil {
			return *n, nil
		}
	case *Not:
		if n != nil {
			return *n, nil
		}
	case nil:
	default:
		return nil, fmt.Errorf("%w: unsupported predicate node %T", types.ErrTranslation, p)
	}
	return nil, fmt.Errorf("%w: missing predicate node", types.ErrTranslation)
}
