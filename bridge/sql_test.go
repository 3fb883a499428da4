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

package bridge

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/tomoncle/entitygate/persistence"
	"github.com/tomoncle/entitygate/predicate"
	"github.com/tomoncle/entitygate/repository"
	"github.com/tomoncle/entitygate/types"
)

type invoice struct {
	bun.BaseModel `bun:"table:invoices"`

	Id     int64 `bun:",pk,autoincrement" entity:"key"`
	Number string
	Status string
	Total  float64
}

var invoiceStatements = Statements{
	Select: "SELECT * FROM invoices {{where .Filter}} ORDER BY {{.Sort}}{{if .Paged}} LIMIT {{arg .Take}} OFFSET {{arg .Skip}}{{end}}",
	Total:  "SELECT count(*) FROM invoices {{where .Filter}}",
	ByKey:  "SELECT * FROM invoices WHERE id = {{arg .Key}}",
}

func openInvoices(t *testing.T, n int) *bun.DB {
	t.Helper()
	ctx := context.Background()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	sqldb, err := sql.Open(sqliteshim.ShimName, "file:"+name+"?mode=memory&cache=shared")
	require.NoError(t, err)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.NewCreateTable().Model((*invoice)(nil)).Exec(ctx)
	require.NoError(t, err)
	rows := make([]*invoice, 0, n)
	for i := 1; i <= n; i++ {
		status := "Open"
		if i%2 == 0 {
			status = "Paid"
		}
		rows = append(rows, &invoice{Number: fmt.Sprintf("INV-%02d", i), Status: status, Total: float64(i)})
	}
	if n > 0 {
		_, err = db.NewInsert().Model(&rows).Exec(ctx)
		require.NoError(t, err)
	}
	return db
}

func numbers(items []*invoice) []string {
	out := make([]string, len(items))
	for i, inv := range items {
		out[i] = inv.Number
	}
	return out
}

func TestNewSQL_RejectsBadStatements(t *testing.T) {
	_, err := NewSQL[invoice](nil, Statements{Select: "SELECT 1", Total: "SELECT 1"})
	assert.ErrorIs(t, err, types.ErrConfiguration)

	_, err = NewSQL[invoice](nil, Statements{Select: "SELECT {{", Total: "SELECT 1", ByKey: "SELECT 1"})
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestRender_BindsArguments(t *testing.T) {
	s, err := NewSQL[invoice](nil, Statements{
		Select: "CALL list_orders({{arg .Filter}}, {{arg .Sort}}, {{arg .Skip}}, {{arg .Take}})",
		Total:  "SELECT count(*) FROM orders {{where .Filter}}",
		ByKey:  "CALL get_order({{arg .Key}})",
	})
	require.NoError(t, err)

	query, args, err := render(s.selectT, Params{Filter: "(Status='Paid')", Sort: "Id ASC", Skip: 10, Take: 10})
	require.NoError(t, err)
	assert.Equal(t, "CALL list_orders(?, ?, ?, ?)", query)
	assert.Equal(t, []any{"(Status='Paid')", "Id ASC", 10, 10}, args)

	query, args, err = render(s.totalT, Params{})
	require.NoError(t, err)
	assert.Equal(t, "SELECT count(*) FROM orders ", query)
	assert.Empty(t, args)

	query, args, err = render(s.totalT, Params{Filter: "(Note='why?')"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT count(*) FROM orders WHERE ?", query)
	assert.Equal(t, []any{bun.Safe("(Note='why?')")}, args)

	_, args, err = render(s.byKeyT, Params{Key: int64(7)})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(7)}, args)
}

func TestSQL_QueriesSQLite(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQL[invoice](openInvoices(t, 25), invoiceStatements)
	require.NoError(t, err)

	page, err := s.Select(ctx, "", "Id ASC", 10, 2)
	require.NoError(t, err)
	require.Len(t, page, 10)
	assert.Equal(t, "INV-11", page[0].Number)
	assert.Equal(t, "INV-20", page[9].Number)

	all, err := s.Select(ctx, "(Status='Open') AND (NOT (Id=1))", "Total DESC", 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 12)
	assert.Equal(t, "INV-25", all[0].Number)

	total, err := s.SelectTotal(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 25, total)
	total, err = s.SelectTotal(ctx, "(Status='Paid')")
	require.NoError(t, err)
	assert.Equal(t, 12, total)

	inv, err := s.GetByKey(ctx, int64(7))
	require.NoError(t, err)
	require.NotNil(t, inv)
	assert.Equal(t, "INV-07", inv.Number)

	inv, err = s.GetByKey(ctx, int64(99))
	require.NoError(t, err)
	assert.Nil(t, inv)
}

func TestSQL_QuestionMarkInsideLiterals(t *testing.T) {
	ctx := context.Background()
	db := openInvoices(t, 3)
	_, err := db.NewUpdate().Model((*invoice)(nil)).Set("number = ?", "INV-01?").Where("id = ?", 1).Exec(ctx)
	require.NoError(t, err)

	s, err := NewSQL[invoice](db, invoiceStatements)
	require.NoError(t, err)
	filter := "(Number='INV-01?') AND (Status<>'x')"

	got, err := s.Select(ctx, filter, "Id ASC", 2, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"INV-01?"}, numbers(got))

	total, err := s.SelectTotal(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	raw, err := NewSQL[invoice](db, Statements{
		Select: "SELECT * FROM invoices WHERE {{.Filter}} ORDER BY {{.Sort}} LIMIT {{arg .Take}}",
		Total:  "SELECT count(*) FROM invoices WHERE {{.Filter}}",
		ByKey:  "SELECT * FROM invoices WHERE id = {{arg .Key}}",
	})
	require.NoError(t, err)
	got, err = raw.Select(ctx, filter, "Id ASC", 5, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"INV-01?"}, numbers(got))
	total, err = raw.SelectTotal(ctx, "(Number<>'?')")
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}

func TestSQL_BacksRepository(t *testing.T) {
	ctx := context.Background()
	db := openInvoices(t, 25)
	s, err := NewSQL[invoice](db, invoiceStatements)
	require.NoError(t, err)

	provider := persistence.NewProvider(persistence.NewBunStore(db))
	repo, err := repository.New[invoice](provider, nil,
		repository.WithBridge[invoice](s),
		repository.WithOwnedProvider[invoice]())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Dispose(ctx) })

	page, err := repo.GetPage(ctx, predicate.Eq("Status", "Paid"), nil, 5, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"INV-12", "INV-14", "INV-16", "INV-18", "INV-20"}, numbers(page.Items))
	assert.Equal(t, 12, page.Total)

	inv, err := repo.GetByKey(ctx, "14")
	require.NoError(t, err)
	assert.Same(t, page.Items[1], inv)

	inv.Status = "Refunded"
	require.NoError(t, repo.Update(ctx, inv))

	var stored invoice
	require.NoError(t, db.NewSelect().Model(&stored).Where("id = ?", 14).Scan(ctx))
	assert.Equal(t, "Refunded", stored.Status)

	require.ErrorIs(t, repo.DeleteByKey(ctx, 99), types.ErrNotFound)
}
