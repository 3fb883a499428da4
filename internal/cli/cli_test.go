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

package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/entitygate/types"
)

func writeConfig(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "entitygate.yaml")
	body := fmt.Sprintf(`connection:
  type: sqlite
  dbname: "file:%s?mode=memory&cache=shared"
  slow_query_time: 0s
`, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func decode(t *testing.T, out string) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func TestRoot_RejectsUnknownFormat(t *testing.T) {
	_, err := execute(t, "filter", "Id=1", "--format", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestFilter_TextGolden(t *testing.T) {
	out, err := execute(t, "filter", "(DeletedAt is not null) and (Status = 'Paid')", "--sort", "[Status] desc, Id")
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "filter_text", []byte(out))
}

func TestFilter_JSON(t *testing.T) {
	out, err := execute(t, "filter", "Id=1 OR Id=2 AND NOT Id=3", "--format", "json")
	require.NoError(t, err)

	resp := decode(t, out)
	assert.Equal(t, "ok", resp.Status)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "(Id=1) OR ((Id=2) AND (NOT (Id=3)))", data["filter"])
	assert.Nil(t, data["sort"])
}

func TestFilter_TranslationErrors(t *testing.T) {
	out, err := execute(t, "filter", "Id=1; DROP TABLE orders", "--format", "json")
	assert.ErrorIs(t, err, types.ErrTranslation)
	resp := decode(t, out)
	assert.Equal(t, "error", resp.Status)
	assert.NotEmpty(t, resp.Error)

	_, err = execute(t, "filter", "Id=1", "--sort", "Id DOWN")
	assert.ErrorIs(t, err, types.ErrTranslation)

	_, err = execute(t, "filter")
	assert.Error(t, err)
}

func TestMigrate_ListsAppliedSteps(t *testing.T) {
	cfg := writeConfig(t, "climigrate")

	out, err := execute(t, "migrate", "--config", cfg, "--format", "json")
	require.NoError(t, err)

	resp := decode(t, out)
	assert.Equal(t, "ok", resp.Status)
	steps, ok := resp.Data.([]interface{})
	require.True(t, ok)
	require.Len(t, steps, 1)
	assert.Equal(t, "001", steps[0].(map[string]interface{})["Version"])

	out, err = execute(t, "migrate", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "create_base_tables")
}

func TestMigrate_MissingConfig(t *testing.T) {
	out, err := execute(t, "migrate", "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, types.ErrConfiguration)
	assert.Contains(t, out, "Error:")
}

func TestHealth(t *testing.T) {
	cfg := writeConfig(t, "clihealth")

	out, err := execute(t, "health", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "healthy  type=sqlite")

	out, err = execute(t, "health", "--config", cfg, "--format", "json")
	require.NoError(t, err)
	resp := decode(t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, true, resp.Data.(map[string]interface{})["healthy"])
}

func TestHealth_UnsupportedType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entitygate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("connection:\n  type: oracle\n"), 0o600))

	out, err := execute(t, "health", "--config", path, "--format", "json")
	assert.ErrorIs(t, err, types.ErrConfiguration)
	resp := decode(t, out)
	assert.Equal(t, "error", resp.Status)
	assert.NotNil(t, resp.Data)
}
