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
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
)

// MetricsHook records query latency and failures per operation.
type MetricsHook struct {
	duration *prometheus.HistogramVec
	failures *prometheus.CounterVec
}

var _ bun.QueryHook = (*MetricsHook)(nil)

// NewMetricsHook builds the collectors under namespace. They are not
// registered; call Register or collect them yourself.
func NewMetricsHook(namespace string) *MetricsHook {
	return &MetricsHook{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Duration of database queries by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_errors_total",
			Help:      "Failed database queries by operation and error class.",
		}, []string{"operation", "class"}),
	}
}

// Register adds the hook's collectors to reg. Collectors that are already
// registered are adopted so the hook can be rebuilt after a reconnect.
func (h *MetricsHook) Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if err := reg.Register(h.duration); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return err
		}
		h.duration = are.ExistingCollector.(*prometheus.HistogramVec)
	}
	if err := reg.Register(h.failures); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return err
		}
		h.failures = are.ExistingCollector.(*prometheus.CounterVec)
	}
	return nil
}

// Duration and Failures expose the collectors for tests and custom registries.
func (h *MetricsHook) Duration() *prometheus.HistogramVec { return h.duration }
func (h *MetricsHook) Failures() *prometheus.CounterVec   { return h.failures }

func (h *MetricsHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *MetricsHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	op := strings.ToLower(event.Operation())
	h.duration.WithLabelValues(op).Observe(time.Since(event.StartTime).Seconds())

	if event.Err == nil || errors.Is(event.Err, sql.ErrNoRows) {
		return
	}
	_, class := IsSqlError(event.Err)
	h.failures.WithLabelValues(op, class.String()).Inc()
}
