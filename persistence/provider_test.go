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

package persistence_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/entitygate/persistence"
	"github.com/tomoncle/entitygate/persistence/memory"
	"github.com/tomoncle/entitygate/types"
)

type order struct {
	Id     int64 `entity:"key" bun:",pk,autoincrement"`
	Status string
	Total  float64
}

var errBoom = errors.New("boom")

func newProvider(t *testing.T, opts ...persistence.Option) (*persistence.Provider, *memory.Store) {
	t.Helper()
	store := memory.New(nil)
	return persistence.NewProvider(store, opts...), store
}

func TestProvider_GetOpensLazily(t *testing.T) {
	ctx := context.Background()
	p, store := newProvider(t)
	assert.False(t, store.IsOpen())

	pc, err := p.Get(ctx)
	require.NoError(t, err)
	again, err := p.Get(ctx)
	require.NoError(t, err)

	assert.Same(t, pc, again)
	assert.True(t, store.IsOpen())
	assert.Equal(t, 1, store.Calls(memory.OpOpen))
	assert.Same(t, store, pc.Store())
}

func TestProvider_GetOpenFailure(t *testing.T) {
	p, store := newProvider(t)
	store.FailNext(memory.OpOpen, errBoom)

	_, err := p.Get(context.Background())
	assert.ErrorIs(t, err, errBoom)
	assert.False(t, store.IsOpen())
}

func TestProvider_BeginTransactionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	p, store := newProvider(t)

	require.NoError(t, p.BeginTransaction(ctx))
	require.NoError(t, p.BeginTransaction(ctx))
	assert.Equal(t, 1, store.Calls(memory.OpBegin))
	assert.True(t, store.InTransaction())

	require.NoError(t, p.Commit(ctx))
	require.NoError(t, p.Commit(ctx))
	assert.Equal(t, 1, store.Calls(memory.OpCommit))

	require.NoError(t, p.Rollback(ctx))
	assert.Equal(t, 0, store.Calls(memory.OpRollback))
}

func TestProvider_FlushRunsInOwnTransaction(t *testing.T) {
	ctx := context.Background()
	p, store := newProvider(t)
	pc, err := p.Get(ctx)
	require.NoError(t, err)

	o := &order{Status: "New"}
	_, err = pc.Attach(o, types.Added)
	require.NoError(t, err)
	require.True(t, pc.HasChanges())

	require.NoError(t, p.Flush(ctx))
	assert.Equal(t, 1, store.Calls(memory.OpBegin))
	assert.Equal(t, 1, store.Calls(memory.OpCommit))
	assert.False(t, store.InTransaction())
	assert.Equal(t, types.Unchanged, pc.State(o))
	assert.False(t, pc.HasChanges())
	assert.EqualValues(t, 1, o.Id)

	rows := memory.Rows[order](store)
	require.Len(t, rows, 1)
	assert.Equal(t, "New", rows[0].Status)
}

func TestProvider_FlushJoinsActiveTransaction(t *testing.T) {
	ctx := context.Background()
	p, store := newProvider(t)
	require.NoError(t, p.BeginTransaction(ctx))
	pc, err := p.Get(ctx)
	require.NoError(t, err)

	_, err = pc.Attach(&order{Status: "New"}, types.Added)
	require.NoError(t, err)
	require.NoError(t, p.Flush(ctx))

	assert.True(t, store.InTransaction())
	assert.Empty(t, memory.Rows[order](store))

	require.NoError(t, p.Commit(ctx))
	assert.Len(t, memory.Rows[order](store), 1)
}

func TestProvider_FlushFailureKeepsChangesPending(t *testing.T) {
	ctx := context.Background()
	p, store := newProvider(t)
	pc, err := p.Get(ctx)
	require.NoError(t, err)

	o := &order{Status: "New"}
	_, err = pc.Attach(o, types.Added)
	require.NoError(t, err)
	store.FailNext(memory.OpInsert, errBoom)

	err = p.Flush(ctx)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, store.Calls(memory.OpRollback))
	assert.Equal(t, types.Added, pc.State(o))
	assert.Empty(t, memory.Rows[order](store))
	assert.True(t, store.IsOpen())
}

func TestProvider_SaveChangesCommitsEveryPendingEntry(t *testing.T) {
	ctx := context.Background()
	p, store := newProvider(t, persistence.WithTransactionBuffered(true))
	require.True(t, p.TransactionBuffered())
	require.NoError(t, store.Seed(&order{Id: 1, Status: "Paid"}, &order{Id: 2, Status: "Paid"}))

	pc, err := p.Get(ctx)
	require.NoError(t, err)
	_, err = pc.Attach(&order{Status: "New"}, types.Added)
	require.NoError(t, err)
	_, err = pc.Attach(&order{Id: 1, Status: "Shipped"}, types.Modified)
	require.NoError(t, err)
	gone := &order{Id: 2}
	_, err = pc.Attach(gone, types.Deleted)
	require.NoError(t, err)

	require.NoError(t, p.SaveChanges(ctx))

	rows := memory.Rows[order](store)
	require.Len(t, rows, 2)
	assert.Equal(t, order{Id: 1, Status: "Shipped"}, *rows[0])
	assert.Equal(t, order{Id: 3, Status: "New"}, *rows[1])
	assert.Equal(t, types.Detached, pc.State(gone))
	assert.False(t, pc.HasChanges())
}

func TestProvider_SaveChangesFailureRollsBackAndCloses(t *testing.T) {
	ctx := context.Background()
	p, store := newProvider(t, persistence.WithTransactionBuffered(true))
	pc, err := p.Get(ctx)
	require.NoError(t, err)
	_, err = pc.Attach(&order{Status: "New"}, types.Added)
	require.NoError(t, err)
	store.FailNext(memory.OpCommit, errBoom)

	err = p.SaveChanges(ctx)
	assert.ErrorIs(t, err, types.ErrTransactionFailure)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, store.Calls(memory.OpRollback))
	assert.False(t, store.IsOpen())
	assert.Empty(t, memory.Rows[order](store))
}

func TestProvider_SaveChangesKeepsConcurrencyConflict(t *testing.T) {
	ctx := context.Background()
	p, _ := newProvider(t, persistence.WithTransactionBuffered(true))
	pc, err := p.Get(ctx)
	require.NoError(t, err)
	_, err = pc.Attach(&order{Id: 42, Status: "Paid"}, types.Modified)
	require.NoError(t, err)

	err = p.SaveChanges(ctx)
	assert.ErrorIs(t, err, types.ErrConcurrencyConflict)
	assert.NotErrorIs(t, err, types.ErrTransactionFailure)
}

func TestProvider_DisposeFlushesOnce(t *testing.T) {
	ctx := context.Background()
	p, store := newProvider(t, persistence.WithTransactionBuffered(true))
	pc, err := p.Get(ctx)
	require.NoError(t, err)
	_, err = pc.Attach(&order{Status: "New"}, types.Added)
	require.NoError(t, err)

	require.NoError(t, p.Dispose(ctx))
	require.NoError(t, p.Dispose(ctx))

	assert.True(t, p.Disposed())
	assert.False(t, store.IsOpen())
	assert.Equal(t, 1, store.Calls(memory.OpClose))
	assert.Len(t, memory.Rows[order](store), 1)

	_, err = p.Get(ctx)
	assert.ErrorIs(t, err, types.ErrDisposed)
	assert.ErrorIs(t, p.Commit(ctx), types.ErrDisposed)
}

func TestProvider_DisposeWithoutConnection(t *testing.T) {
	p, store := newProvider(t)
	require.NoError(t, p.Dispose(context.Background()))
	assert.Equal(t, 0, store.Calls(memory.OpClose))
	assert.Equal(t, 0, store.Calls(memory.OpOpen))
}

func TestProvider_DiscardDropsPendingChanges(t *testing.T) {
	ctx := context.Background()
	p, store := newProvider(t, persistence.WithTransactionBuffered(true))
	require.NoError(t, p.BeginTransaction(ctx))
	pc, err := p.Get(ctx)
	require.NoError(t, err)
	_, err = pc.Attach(&order{Status: "New"}, types.Added)
	require.NoError(t, err)

	require.NoError(t, p.Discard(ctx))
	require.NoError(t, p.Discard(ctx))
	require.NoError(t, p.Dispose(ctx))

	assert.True(t, p.Disposed())
	assert.False(t, store.IsOpen())
	assert.Equal(t, 1, store.Calls(memory.OpRollback))
	assert.Equal(t, 0, store.Calls(memory.OpInsert))
	assert.Empty(t, memory.Rows[order](store))
}
