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
	"encoding/json"
	"fmt"
	"io"
)

// Response is the JSON envelope of every command.
type Response struct {
	Status string      `json:"status"` // "ok" or "error"
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

type output struct {
	format string
	w      io.Writer
}

// success writes data as JSON, or text through the text callback.
func (o output) success(data interface{}, text func(w io.Writer)) error {
	if o.format == "json" {
		return json.NewEncoder(o.w).Encode(Response{Status: "ok", Data: data})
	}
	text(o.w)
	return nil
}

// failure reports err and returns it so the command exits non-zero.
func (o output) failure(err error, data interface{}) error {
	if o.format == "json" {
		_ = json.NewEncoder(o.w).Encode(Response{Status: "error", Data: data, Error: err.Error()})
	} else {
		fmt.Fprintf(o.w, "Error: %v\n", err)
	}
	return err
}
