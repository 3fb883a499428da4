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

package memory

import (
	"context"
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/entitygate/ordering"
	"github.com/tomoncle/entitygate/persistence"
	"github.com/tomoncle/entitygate/predicate"
	"github.com/tomoncle/entitygate/types"
)

type widget struct {
	Id    int64 `entity:"key"`
	Name  string
	Price float64
}

type token struct {
	Ref   uuid.UUID `entity:"key"`
	Owner string
}

func openStore(t *testing.T) *Store {
	t.Helper()
	s := New(nil)
	require.NoError(t, s.Open(context.Background()))
	return s
}

func TestStore_InsertAssignsKeys(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	require.NoError(t, s.Seed(&widget{Id: 10, Name: "seed"}))
	w := &widget{Name: "next"}
	require.NoError(t, s.Insert(ctx, w))
	assert.EqualValues(t, 11, w.Id)

	tok := &token{Owner: "ann"}
	require.NoError(t, s.Insert(ctx, tok))
	assert.NotEqual(t, uuid.Nil, tok.Ref)

	err := s.Insert(ctx, &widget{Id: 10})
	assert.ErrorIs(t, err, types.ErrConcurrencyConflict)

	name, err := s.KeyFieldName(reflect.TypeOf(token{}))
	require.NoError(t, err)
	assert.Equal(t, "Ref", name)
}

func TestStore_RowsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	w := &widget{Name: "a"}
	require.NoError(t, s.Insert(ctx, w))

	w.Name = "changed"
	assert.Equal(t, "a", Rows[widget](s)[0].Name)

	var got []*widget
	require.NoError(t, s.Select(ctx, &got, persistence.Query{}))
	got[0].Name = "mutated"
	assert.Equal(t, "a", Rows[widget](s)[0].Name)
}

func TestStore_SelectFiltersSortsAndWindows(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	for _, n := range []string{"c", "a", "b", "a"} {
		require.NoError(t, s.Insert(ctx, &widget{Name: n}))
	}

	var got []*widget
	q := persistence.Query{
		Where: predicate.Ne("Name", "c"),
		Sort:  ordering.Sort{ordering.Asc("Name"), ordering.Desc("Id")},
	}
	require.NoError(t, s.Select(ctx, &got, q))
	ids := func() []int64 {
		out := make([]int64, len(got))
		for i, w := range got {
			out[i] = w.Id
		}
		return out
	}
	assert.Equal(t, []int64{4, 2, 3}, ids())

	require.NoError(t, s.Select(ctx, &got, q.Window(1, 1)))
	assert.Equal(t, []int64{2}, ids())

	n, err := s.Count(ctx, (*widget)(nil), q.Window(1, 1))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	var bad []widget
	assert.ErrorIs(t, s.Select(ctx, &bad, q), types.ErrConfiguration)
}

func TestStore_TransactionsIsolateWork(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	require.NoError(t, s.Seed(&widget{Id: 1, Name: "keep"}))

	require.NoError(t, s.Begin(ctx))
	require.NoError(t, s.Delete(ctx, &widget{Id: 1}))
	require.NoError(t, s.Insert(ctx, &widget{Name: "temp"}))
	assert.Len(t, Rows[widget](s), 1)
	require.NoError(t, s.Rollback(ctx))
	assert.Equal(t, "keep", Rows[widget](s)[0].Name)

	require.NoError(t, s.Begin(ctx))
	require.NoError(t, s.Update(ctx, &widget{Id: 1, Name: "renamed"}))
	require.NoError(t, s.Commit(ctx))
	assert.Equal(t, "renamed", Rows[widget](s)[0].Name)

	assert.ErrorIs(t, s.Update(ctx, &widget{Id: 5}), types.ErrConcurrencyConflict)
	assert.ErrorIs(t, s.Delete(ctx, &widget{Id: 5}), types.ErrConcurrencyConflict)
}

func TestStore_ClosedStoreRejectsData(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	assert.ErrorIs(t, s.Insert(ctx, &widget{}), ErrNotOpen)
	assert.ErrorIs(t, s.Begin(ctx), ErrNotOpen)

	require.NoError(t, s.Open(ctx))
	require.NoError(t, s.Close())
	assert.False(t, s.IsOpen())
	var got []*widget
	assert.ErrorIs(t, s.Select(ctx, &got, persistence.Query{}), ErrNotOpen)
}
