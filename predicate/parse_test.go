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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/entitygate/types"
)

func TestParse_OrderScenario(t *testing.T) {
	p, err := Parse("(Status='Paid') AND (Id<>3)")
	require.NoError(t, err)

	want := And{
		Left:  Comparison{Op: OpEqual, Field: "Status", Value: Literal{Value: "Paid"}},
		Right: Comparison{Op: OpNotEqual, Field: "Id", Value: Literal{Value: int64(3)}},
	}
	assert.Equal(t, want, p)
}

func TestParse_RoundTrip(t *testing.T) {
	trees := []Predicate{
		Eq("Id", 1),
		And{Left: Eq("Status", "Paid"), Right: Ne("Id", 3)},
		All(Eq("Name", "O'Brien"), Eq("Active", true), Ne("DeletedAt", nil)),
		Or{Left: And{Left: Eq("A", 1), Right: Eq("B", "x")}, Right: Not{Inner: EqField("C", "D")}},
		And{Left: Eq("Ratio", 2.5), Right: Or{Left: Eq("Big", uint64(18446744073709551615)), Right: Eq("Small", -4)}},
		Not{Inner: Not{Inner: Eq("Status", "")}},
	}

	for _, tree := range trees {
		text, err := Compile(tree)
		require.NoError(t, err)

		parsed, err := Parse(text)
		require.NoError(t, err, text)

		again, err := Compile(parsed)
		require.NoError(t, err)
		assert.Equal(t, text, again)
		assert.Equal(t, Fields(tree), Fields(parsed))
	}
}

func TestParse_Precedence(t *testing.T) {
	p, err := Parse("Id=1 OR Id=2 AND NOT Id=3")
	require.NoError(t, err)

	got, err := Compile(p)
	require.NoError(t, err)
	assert.Equal(t, "(Id=1) OR ((Id=2) AND (NOT (Id=3)))", got)
}

func TestParse_KeywordsAreCaseInsensitive(t *testing.T) {
	p, err := Parse("(DeletedAt is not null) and (Status = 'Paid')")
	require.NoError(t, err)

	got, err := Compile(p)
	require.NoError(t, err)
	assert.Equal(t, "(DeletedAt IS NOT NULL) AND (Status='Paid')", got)
}

func TestParse_Empty(t *testing.T) {
	p, err := Parse("   ")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestParse_Errors(t *testing.T) {
	for _, filter := range []string{
		"(Status='Paid'",
		"Status='Paid')",
		"Status=",
		"Status 'Paid'",
		"Status='Paid",
		"Status IS 3",
		"AND Id=1",
		"Id=1 AND",
		"Id>1",
		"Id=1; DROP TABLE orders",
	} {
		t.Run(filter, func(t *testing.T) {
			_, err := Parse(filter)
			assert.ErrorIs(t, err, types.ErrTranslation)
		})
	}
}
