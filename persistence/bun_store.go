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
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/entitygate/database"
	"github.com/tomoncle/entitygate/predicate"
	"github.com/tomoncle/entitygate/types"
)

// BunStore is a StoreClient on a bun database. Each store holds a dedicated
// connection from the pool so that a transaction and the reads around it
// share one session.
type BunStore struct {
	db   *bun.DB
	conn *bun.Conn
	tx   *bun.Tx
}

var _ StoreClient = (*BunStore)(nil)

func NewBunStore(db *bun.DB) *BunStore {
	return &BunStore{db: db}
}

// DB returns the database the store draws connections from.
func (s *BunStore) DB() *bun.DB { return s.db }

func (s *BunStore) Open(ctx context.Context) error {
	if s.conn != nil {
		return nil
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}
	s.conn = &conn
	return nil
}

func (s *BunStore) Close() error {
	if s.conn == nil {
		return nil
	}
	if s.tx != nil {
		_ = s.tx.Rollback()
		s.tx = nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *BunStore) IsOpen() bool { return s.conn != nil }

func (s *BunStore) Begin(ctx context.Context) error {
	if s.conn == nil {
		return errors.New("store connection is not open")
	}
	if s.tx != nil {
		return nil
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	s.tx = &tx
	return nil
}

func (s *BunStore) Commit(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	return tx.Commit()
}

func (s *BunStore) Rollback(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	return tx.Rollback()
}

func (s *BunStore) InTransaction() bool { return s.tx != nil }

// idb returns the active transaction, or the session connection outside
// one.
func (s *BunStore) idb() (bun.IDB, error) {
	if s.tx != nil {
		return s.tx, nil
	}
	if s.conn != nil {
		return s.conn, nil
	}
	return nil, errors.New("store connection is not open")
}

// KeyFieldName returns the single primary key of the bun model.
func (s *BunStore) KeyFieldName(entityType reflect.Type) (string, error) {
	table, err := s.table(entityType)
	if err != nil {
		return "", err
	}
	if len(table.PKs) != 1 {
		return "", fmt.Errorf("%w: %s has %d primary key columns, want 1", types.ErrConfiguration, table.Type, len(table.PKs))
	}
	return table.PKs[0].GoName, nil
}

func (s *BunStore) table(entityType reflect.Type) (*schema.Table, error) {
	t := entityType
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %v is not a model type", types.ErrConfiguration, entityType)
	}
	return s.db.Table(t), nil
}

// modelTable resolves the table of a model value: an entity pointer or a
// pointer to a slice of them.
func (s *BunStore) modelTable(model any) (*schema.Table, error) {
	t := reflect.TypeOf(model)
	for t != nil && (t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice) {
		t = t.Elem()
	}
	return s.table(t)
}

func (s *BunStore) Select(ctx context.Context, dest any, q Query) error {
	idb, err := s.idb()
	if err != nil {
		return err
	}
	table, err := s.modelTable(dest)
	if err != nil {
		return err
	}
	sel := idb.NewSelect().Model(dest)
	if sel, err = applyWhere(sel, table, q); err != nil {
		return err
	}
	for _, term := range q.Sort {
		col, err := column(table, term.Field)
		if err != nil {
			return err
		}
		dir := "ASC"
		if term.Desc {
			dir = "DESC"
		}
		sel = sel.OrderExpr("? "+dir, bun.Ident(col))
	}
	if q.Skip > 0 {
		sel = sel.Offset(q.Skip)
	}
	if q.Take > 0 {
		sel = sel.Limit(q.Take)
	}
	return database.ClassifyError(ignoreNoRows(sel.Scan(ctx)))
}

func (s *BunStore) Count(ctx context.Context, model any, q Query) (int, error) {
	idb, err := s.idb()
	if err != nil {
		return 0, err
	}
	table, err := s.modelTable(model)
	if err != nil {
		return 0, err
	}
	sel := idb.NewSelect().Model(model)
	if sel, err = applyWhere(sel, table, q); err != nil {
		return 0, err
	}
	n, err := sel.Count(ctx)
	return n, database.ClassifyError(err)
}

func (s *BunStore) Insert(ctx context.Context, entity any) error {
	idb, err := s.idb()
	if err != nil {
		return err
	}
	_, err = idb.NewInsert().Model(entity).Exec(ctx)
	return database.ClassifyError(err)
}

func (s *BunStore) Update(ctx context.Context, entity any) error {
	idb, err := s.idb()
	if err != nil {
		return err
	}
	res, err := idb.NewUpdate().Model(entity).WherePK().Exec(ctx)
	return affected("update", entity, res, err)
}

func (s *BunStore) Delete(ctx context.Context, entity any) error {
	idb, err := s.idb()
	if err != nil {
		return err
	}
	res, err := idb.NewDelete().Model(entity).WherePK().Exec(ctx)
	return affected("delete", entity, res, err)
}

func (s *BunStore) Refresh(ctx context.Context, entity any) error {
	idb, err := s.idb()
	if err != nil {
		return err
	}
	return database.ClassifyError(idb.NewSelect().Model(entity).WherePK().Scan(ctx))
}

// affected turns a write that touched no row into a concurrency conflict:
// the row was changed or removed by someone else since it was read.
func affected(op string, entity any, res sql.Result, err error) error {
	if err != nil {
		return database.ClassifyError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return database.ClassifyError(err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %T affected no rows", types.ErrConcurrencyConflict, op, entity)
	}
	return nil
}

func ignoreNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return err
}

func applyWhere(sel *bun.SelectQuery, table *schema.Table, q Query) (*bun.SelectQuery, error) {
	if q.Where == nil {
		return sel, nil
	}
	clause, args, err := whereClause(table, q.Where)
	if err != nil {
		return nil, err
	}
	return sel.Where(clause, args...), nil
}

// whereClause renders p as a bun WHERE fragment with ? placeholders. Columns
// are bound as bun.Ident and values as arguments, never spliced into the
// text.
func whereClause(table *schema.Table, p predicate.Predicate) (string, []any, error) {
	var b strings.Builder
	var args []any
	var walk func(p predicate.Predicate) error
	walk = func(p predicate.Predicate) error {
		n, err := predicate.Unwrap(p)
		if err != nil {
			return err
		}
		switch n := n.(type) {
		case predicate.Comparison:
			col, err := column(table, n.Field)
			if err != nil {
				return err
			}
			if ref, ok := n.Value.(predicate.FieldRef); ok {
				other, err := column(table, ref.Name)
				if err != nil {
					return err
				}
				b.WriteString("(? " + n.Op.Token() + " ?)")
				args = append(args, bun.Ident(col), bun.Ident(other))
				return nil
			}
			v, err := predicate.Resolve(n.Value)
			if err != nil {
				return err
			}
			if predicate.IsNull(v) {
				if n.Op == predicate.OpNotEqual {
					b.WriteString("(? IS NOT NULL)")
				} else {
					b.WriteString("(? IS NULL)")
				}
				args = append(args, bun.Ident(col))
				return nil
			}
			b.WriteString("(? " + n.Op.Token() + " ?)")
			args = append(args, bun.Ident(col), v)
		case predicate.And:
			return binary(&b, walk, " AND ", n.Left, n.Right)
		case predicate.Or:
			return binary(&b, walk, " OR ", n.Left, n.Right)
		case predicate.Not:
			b.WriteString("NOT (")
			if err := walk(n.Inner); err != nil {
				return err
			}
			b.WriteString(")")
		}
		return nil
	}
	if err := walk(p); err != nil {
		return "", nil, err
	}
	return b.String(), args, nil
}

func binary(b *strings.Builder, walk func(predicate.Predicate) error, keyword string, left, right predicate.Predicate) error {
	b.WriteString("(")
	if err := walk(left); err != nil {
		return err
	}
	b.WriteString(keyword)
	if err := walk(right); err != nil {
		return err
	}
	b.WriteString(")")
	return nil
}

// column maps a Go field name to its column.
func column(table *schema.Table, field string) (string, error) {
	for _, f := range table.Fields {
		if f.GoName == field {
			return f.Name, nil
		}
	}
	for _, f := range table.Fields {
		if strings.EqualFold(f.GoName, field) || f.Name == field {
			return f.Name, nil
		}
	}
	return "", fmt.Errorf("%w: %s has no column for field %q", types.ErrTranslation, table.Type, field)
}
