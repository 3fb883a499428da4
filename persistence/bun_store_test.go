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
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/tomoncle/entitygate/ordering"
	"github.com/tomoncle/entitygate/persistence"
	"github.com/tomoncle/entitygate/predicate"
	"github.com/tomoncle/entitygate/types"
)

type invoice struct {
	bun.BaseModel `bun:"table:invoices"`

	Id       int64  `bun:",pk,autoincrement"`
	Number   string `bun:",notnull"`
	Status   string
	Total    float64
	Discount float64
	Note     *string
}

type ledgerLine struct {
	Book int64 `bun:",pk"`
	Line int64 `bun:",pk"`
}

func openBun(t *testing.T) *bun.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	sqldb, err := sql.Open(sqliteshim.ShimName, "file:"+name+"?mode=memory&cache=shared")
	require.NoError(t, err)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.NewCreateTable().Model((*invoice)(nil)).Exec(context.Background())
	require.NoError(t, err)
	return db
}

// seedInvoices writes n invoices numbered INV-01.. through a provider.
func seedInvoices(t *testing.T, p *persistence.Provider, n int) {
	t.Helper()
	ctx := context.Background()
	pc, err := p.Get(ctx)
	require.NoError(t, err)
	for i := 1; i <= n; i++ {
		status := "Open"
		if i%2 == 0 {
			status = "Paid"
		}
		_, err := pc.Attach(&invoice{Number: fmt.Sprintf("INV-%02d", i), Status: status, Total: float64(i)}, types.Added)
		require.NoError(t, err)
	}
	require.NoError(t, p.Flush(ctx))
}

func TestBunStore_KeyFieldName(t *testing.T) {
	store := persistence.NewBunStore(openBun(t))

	name, err := store.KeyFieldName(reflect.TypeOf(&invoice{}))
	require.NoError(t, err)
	assert.Equal(t, "Id", name)

	_, err = store.KeyFieldName(reflect.TypeOf(ledgerLine{}))
	assert.ErrorIs(t, err, types.ErrConfiguration)
	_, err = store.KeyFieldName(reflect.TypeOf(""))
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestBunStore_PageTwoOfTwentyFive(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewBunStore(openBun(t))
	p := persistence.NewProvider(store)
	t.Cleanup(func() { _ = p.Dispose(ctx) })
	seedInvoices(t, p, 25)

	q, paged := ordering.ApplyPagination(persistence.Query{Sort: ordering.Sort{ordering.Asc("Id")}}, 10, 2)
	require.True(t, paged)

	var page []*invoice
	require.NoError(t, store.Select(ctx, &page, q))
	require.Len(t, page, 10)
	for i, inv := range page {
		assert.Equal(t, fmt.Sprintf("INV-%02d", i+11), inv.Number)
	}

	total, err := store.Count(ctx, (*invoice)(nil), q)
	require.NoError(t, err)
	assert.Equal(t, 25, total)
}

func TestBunStore_SelectTranslatesPredicates(t *testing.T) {
	ctx := context.Background()
	db := openBun(t)
	store := persistence.NewBunStore(db)
	p := persistence.NewProvider(store)
	t.Cleanup(func() { _ = p.Dispose(ctx) })
	seedInvoices(t, p, 6)

	note := "rush"
	_, err := db.NewUpdate().Model((*invoice)(nil)).
		Set("discount = total").Set("note = ?", note).
		Where("id IN (?)", bun.In([]int64{2, 3})).
		Exec(ctx)
	require.NoError(t, err)

	status := "Paid"
	tests := []struct {
		name  string
		where predicate.Predicate
		sort  ordering.Sort
		want  []int64
	}{
		{"eq", predicate.Eq("Status", "Paid"), nil, []int64{2, 4, 6}},
		{"captured", predicate.Eq("Status", predicate.Capture("status", &status)), ordering.Sort{ordering.Desc("Id")}, []int64{6, 4, 2}},
		{"and ne", predicate.All(predicate.Eq("Status", "Paid"), predicate.Ne("Id", 4)), nil, []int64{2, 6}},
		{"or", predicate.Any(predicate.Eq("Id", 1), predicate.Eq("Number", "INV-05")), nil, []int64{1, 5}},
		{"not", predicate.Negate(predicate.Eq("Status", "Open")), nil, []int64{2, 4, 6}},
		{"field ref", predicate.EqField("Total", "Discount"), nil, []int64{2, 3}},
		{"is null", predicate.Ne("Note", nil), nil, []int64{2, 3}},
		{"parsed", mustParse(t, "(Status='Open') AND (NOT (Note IS NULL))"), nil, []int64{3}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sort := tc.sort
			if sort == nil {
				sort = ordering.Sort{ordering.Asc("Id")}
			}
			var got []*invoice
			require.NoError(t, store.Select(ctx, &got, persistence.Query{Where: tc.where, Sort: sort}))
			ids := make([]int64, len(got))
			for i, inv := range got {
				ids[i] = inv.Id
			}
			assert.Equal(t, tc.want, ids)

			n, err := store.Count(ctx, (*invoice)(nil), persistence.Query{Where: tc.where})
			require.NoError(t, err)
			assert.Equal(t, len(tc.want), n)
		})
	}
}

func mustParse(t *testing.T, filter string) predicate.Predicate {
	t.Helper()
	p, err := predicate.Parse(filter)
	require.NoError(t, err)
	return p
}

func TestBunStore_UnknownFieldIsTranslationError(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewBunStore(openBun(t))
	require.NoError(t, store.Open(ctx))
	t.Cleanup(func() { _ = store.Close() })

	var got []*invoice
	err := store.Select(ctx, &got, persistence.Query{Where: predicate.Eq("Colour", "red")})
	assert.ErrorIs(t, err, types.ErrTranslation)

	err = store.Select(ctx, &got, persistence.Query{Sort: ordering.Sort{ordering.Asc("Colour")}})
	assert.ErrorIs(t, err, types.ErrTranslation)

	_, err = store.Count(ctx, (*invoice)(nil), persistence.Query{Where: predicate.Eq("Status", predicate.Capture("x", nil))})
	assert.ErrorIs(t, err, types.ErrTranslation)
}

func TestBunStore_WritesWithoutRowsConflict(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewBunStore(openBun(t))
	require.NoError(t, store.Open(ctx))
	t.Cleanup(func() { _ = store.Close() })

	ghost := &invoice{Id: 99, Number: "INV-99"}
	assert.ErrorIs(t, store.Update(ctx, ghost), types.ErrConcurrencyConflict)
	assert.ErrorIs(t, store.Delete(ctx, ghost), types.ErrConcurrencyConflict)
	assert.ErrorIs(t, store.Refresh(ctx, ghost), types.ErrNotFound)

	inv := &invoice{Number: "INV-01", Status: "Open"}
	require.NoError(t, store.Insert(ctx, inv))
	require.NotZero(t, inv.Id)

	inv.Status = "Paid"
	require.NoError(t, store.Update(ctx, inv))

	fresh := &invoice{Id: inv.Id}
	require.NoError(t, store.Refresh(ctx, fresh))
	assert.Equal(t, "Paid", fresh.Status)

	require.NoError(t, store.Delete(ctx, inv))
	assert.ErrorIs(t, store.Refresh(ctx, fresh), types.ErrNotFound)
}

func TestBunStore_RollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewBunStore(openBun(t))
	p := persistence.NewProvider(store, persistence.WithTransactionBuffered(true))
	t.Cleanup(func() { _ = p.Dispose(ctx) })

	require.NoError(t, p.BeginTransaction(ctx))
	require.True(t, store.InTransaction())
	require.NoError(t, store.Insert(ctx, &invoice{Number: "INV-01"}))
	require.NoError(t, p.Rollback(ctx))
	assert.False(t, store.InTransaction())

	n, err := store.Count(ctx, (*invoice)(nil), persistence.Query{})
	require.NoError(t, err)
	assert.Zero(t, n)
}
