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

package database

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/tomoncle/entitygate/types"
)

type widget struct {
	bun.BaseModel `bun:"table:widgets"`

	ID   int64  `bun:",pk,autoincrement"`
	Name string `bun:",notnull"`
}

func sqliteConfig(name string) *ConnectionConfig {
	cfg := DefaultConnectionConfig()
	cfg.Type = "sqlite"
	cfg.DBName = fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	cfg.SlowQueryTime = 0
	return cfg
}

func connect(t *testing.T, name string, opts ...ManagerOption) AbstractDatabaseManager {
	t.Helper()
	m := NewDatabaseManager(sqliteConfig(name), opts...)
	require.NoError(t, m.Connect(context.Background()))
	t.Cleanup(func() { _ = m.Disconnect() })
	return m
}

func TestManager_ConnectAndHealth(t *testing.T) {
	ctx := context.Background()
	m := NewDatabaseManager(sqliteConfig("health"))

	assert.Error(t, m.Ping(ctx))
	status := m.HealthCheck(ctx)
	assert.False(t, status.Healthy)
	assert.Equal(t, "Database not initialized", status.LastError)

	require.NoError(t, m.Connect(ctx))
	require.NoError(t, m.Connect(ctx))
	require.NotNil(t, m.GetDB())
	require.NotNil(t, m.GetSQLDB())
	assert.NoError(t, m.Ping(ctx))

	status = m.HealthCheck(ctx)
	assert.True(t, status.Healthy)
	assert.True(t, status.Connected)
	assert.Equal(t, 100, status.MaxOpenConns)
	assert.Equal(t, 100, m.GetStats().MaxOpenConns)

	require.NoError(t, m.Reconnect(ctx))
	assert.NoError(t, m.Ping(ctx))

	require.NoError(t, m.Disconnect())
	assert.Nil(t, m.GetDB())
	assert.Equal(t, &DBStats{}, m.GetStats())
	assert.NoError(t, m.Disconnect())
}

func TestManager_UnsupportedType(t *testing.T) {
	m := NewDatabaseManager(&ConnectionConfig{Type: "oracle"})
	err := m.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database type")
}

func TestManager_DSNs(t *testing.T) {
	dm := &defaultDatabaseManager{config: &ConnectionConfig{
		Username: "app", Password: "secret", Host: "db", Port: 3306, DBName: "shop",
		ConnectTimeout: time.Second, ReadTimeout: time.Second, WriteTimeout: time.Second,
	}}
	assert.Contains(t, dm.mysqlDSN(), "app:secret@tcp(db:3306)/shop?charset=utf8mb4")
	assert.Contains(t, dm.mysqlDSN(), "clientFoundRows=true")

	dm.config.Port = 5432
	assert.Equal(t, "postgres://app:secret@db:5432/shop?sslmode=disable&connect_timeout=1", dm.postgresDSN())

	for _, tc := range []struct{ name, want string }{
		{"shop", "shop.db"},
		{"data/shop.db", "data/shop.db"},
		{":memory:", ":memory:"},
		{"file:x?mode=memory", "file:x?mode=memory"},
	} {
		dm.config.DBName = tc.name
		assert.Equal(t, tc.want, dm.sqliteDSN(), tc.name)
	}
}

func TestMigrations_CreateRegisteredTablesOnce(t *testing.T) {
	ctx := context.Background()
	RegisterModel[widget](10)
	m := connect(t, "migrate")

	require.NoError(t, m.RunMigrations(ctx))
	require.NoError(t, m.RunMigrations(ctx))

	db := m.GetDB()
	_, err := db.NewInsert().Model(&widget{Name: "bolt"}).Exec(ctx)
	require.NoError(t, err)

	applied, err := NewMigrationManager(db, nil).GetAppliedMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 1)
	assert.Equal(t, "001", applied[0].Version)
	assert.Equal(t, "create_base_tables", applied[0].Name)
}

func TestMigrations_CustomStepRollsBack(t *testing.T) {
	ctx := context.Background()
	m := connect(t, "migrate_fail")
	db := m.GetDB()

	mm := NewMigrationManager(db, GetLogger())
	mm.Add(MigrationItem{
		Version: "002",
		Name:    "broken",
		Up: func(ctx context.Context, db bun.IDB) error {
			return errors.New("boom")
		},
	})
	err := mm.RunMigrations(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration 002")

	applied, err := mm.GetAppliedMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 1)
	assert.Equal(t, "001", applied[0].Version)
}

func TestModelRegistry_OrdersByPriorityAndReplaces(t *testing.T) {
	r := newModelRegistry()
	r.Register(NewModelAdapter((*widget)(nil), 5))
	r.Register(NewModelAdapter((*Migration)(nil), 1))
	r.Register(NewModelAdapter((*widget)(nil), 0))

	models := r.Models()
	require.Len(t, models, 2)
	assert.IsType(t, (*widget)(nil), models[0].Instance())
	assert.Equal(t, 0, models[0].Priority())
}

func TestMetricsHook_RecordsDurationsAndFailures(t *testing.T) {
	ctx := context.Background()
	hook := NewMetricsHook("egtest")
	reg := prometheus.NewRegistry()
	require.NoError(t, hook.Register(reg))

	m := connect(t, "metrics", WithMetrics(hook))
	db := m.GetDB()

	var n int
	require.NoError(t, db.NewSelect().ColumnExpr("1").Scan(ctx, &n))
	err := db.NewSelect().TableExpr("missing_table").ColumnExpr("1").Scan(ctx, &n)
	require.Error(t, err)
	assert.ErrorIs(t, ClassifyError(err), types.ErrConfiguration)

	assert.Equal(t, 1, testutil.CollectAndCount(hook.Duration()))
	assert.Equal(t, 1.0, testutil.ToFloat64(hook.Failures().WithLabelValues("select", "no table")))

	// registering again adopts the existing collectors
	again := NewMetricsHook("egtest")
	require.NoError(t, again.Register(reg))
	assert.Same(t, hook.Failures(), again.Failures())
}

func TestQueryHook_PrintsFailuresOnly(t *testing.T) {
	t.Setenv("ENTITYGATE_SQL", "1")
	var buf bytes.Buffer
	h := NewQueryHook(&buf, false)

	h.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now()})
	assert.Empty(t, buf.String())

	h.AfterQuery(context.Background(), &bun.QueryEvent{
		Query:     "UPDATE orders SET status = 'x'",
		StartTime: time.Now(),
		Err:       errors.New("boom"),
	})
	out := buf.String()
	assert.Contains(t, out, "[BUN]")
	assert.Contains(t, out, ansiYellow+"UPDATE orders")
	assert.Contains(t, out, "boom")

	buf.Reset()
	EnableBunSqlSilent(true)
	h.AfterQuery(context.Background(), &bun.QueryEvent{Query: "DELETE", StartTime: time.Now(), Err: errors.New("x")})
	EnableBunSqlSilent(false)
	assert.Empty(t, buf.String())

	t.Setenv("ENTITYGATE_SQL", "2")
	h.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now()})
	assert.Contains(t, buf.String(), "SELECT 1")
}

type recordingLogger struct {
	msgs []string
}

func (l *recordingLogger) SetLevel(LogLevel)                  {}
func (l *recordingLogger) Debug(msg string, _ ...interface{}) { l.msgs = append(l.msgs, msg) }
func (l *recordingLogger) Info(msg string, _ ...interface{})  { l.msgs = append(l.msgs, msg) }
func (l *recordingLogger) Warn(msg string, _ ...interface{})  { l.msgs = append(l.msgs, msg) }
func (l *recordingLogger) Error(msg string, _ ...interface{}) { l.msgs = append(l.msgs, msg) }

func TestSlowQueryHook(t *testing.T) {
	log := &recordingLogger{}
	var buf bytes.Buffer
	h := NewSlowQueryHook(10*time.Millisecond, log, &buf)

	h.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now()})
	assert.Empty(t, log.msgs)

	h.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 2", StartTime: time.Now().Add(-time.Second)})
	assert.Equal(t, []string{"Database slow query detected"}, log.msgs)
	assert.True(t, strings.Contains(buf.String(), "SELECT 2"))

	t.Setenv("ENTITYGATE_SLOW_SQL", "0")
	h.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 3", StartTime: time.Now().Add(-time.Second)})
	assert.Len(t, log.msgs, 1)
}
