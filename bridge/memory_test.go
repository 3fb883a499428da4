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
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/entitygate/metadata"
	"github.com/tomoncle/entitygate/types"
)

type device struct {
	Serial uuid.UUID `entity:"key"`
	Site   string
	Slot   int32
	Weight float32
	Seen   time.Time
	Online bool
	Labels []string
}

func devices() []*device {
	return []*device{
		{Serial: uuid.MustParse("00000000-0000-0000-0000-000000000003"), Site: "north", Slot: 2},
		{Serial: uuid.MustParse("00000000-0000-0000-0000-000000000001"), Site: "south", Slot: 1},
		{Serial: uuid.MustParse("00000000-0000-0000-0000-000000000002"), Site: "north", Slot: 1},
	}
}

func TestMemory_SelectFiltersSortsAndPages(t *testing.T) {
	ctx := context.Background()
	m, err := NewMemory(metadata.NewResolver(nil), devices()...)
	require.NoError(t, err)

	got, err := m.Select(ctx, "(Site='north')", "Slot ASC, Serial DESC", 0, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.EqualValues(t, 1, got[0].Slot)
	assert.EqualValues(t, 2, got[1].Slot)

	got, err = m.Select(ctx, "", "Serial ASC", 1, 2)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "00000000-0000-0000-0000-000000000002", got[0].Serial.String())

	got[0].Site = "changed"
	again, err := m.Select(ctx, "", "Serial ASC", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "north", again[0].Site)

	n, err := m.SelectTotal(ctx, "NOT (Site='north')")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemory_Errors(t *testing.T) {
	ctx := context.Background()
	m, err := NewMemory(metadata.NewResolver(nil), devices()...)
	require.NoError(t, err)

	_, err = m.Select(ctx, "Site=", "", 0, 0)
	assert.ErrorIs(t, err, types.ErrTranslation)
	_, err = m.Select(ctx, "", "Labels ASC", 0, 0)
	assert.ErrorIs(t, err, types.ErrConfiguration)

	_, err = NewMemory[struct{ Name string }](metadata.NewResolver(nil))
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestMemory_SortsByTimeBoolAndFloat32(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	rows := devices()
	rows[0].Seen, rows[0].Online, rows[0].Weight = base.Add(2*time.Hour), true, 2.5
	rows[1].Seen, rows[1].Online, rows[1].Weight = base, false, 0.5
	rows[2].Seen, rows[2].Online, rows[2].Weight = base.Add(time.Hour), true, 1.5
	m, err := NewMemory(metadata.NewResolver(nil), rows...)
	require.NoError(t, err)

	slots := func(sortText string) []int32 {
		got, err := m.Select(ctx, "", sortText, 0, 0)
		require.NoError(t, err, sortText)
		out := make([]int32, len(got))
		for i, d := range got {
			out[i] = d.Slot*10 + int32(d.Serial[15])
		}
		return out
	}

	assert.Equal(t, []int32{23, 12, 11}, slots("Seen DESC"))
	assert.Equal(t, []int32{11, 12, 23}, slots("Weight ASC"))
	assert.Equal(t, []int32{11, 12, 23}, slots("Online ASC, Serial ASC"))
}

func TestMemory_GetByKey(t *testing.T) {
	ctx := context.Background()
	m, err := NewMemory(metadata.NewResolver(nil), devices()...)
	require.NoError(t, err)

	d, err := m.GetByKey(ctx, "00000000-0000-0000-0000-000000000001")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "south", d.Site)

	m.Replace()
	d, err = m.GetByKey(ctx, uuid.MustParse("00000000-0000-0000-0000-000000000001"))
	require.NoError(t, err)
	assert.Nil(t, d)
}
