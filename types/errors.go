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

package types

import "errors"

// Error kinds shared by every gateway package. Callers match them with
// errors.Is; the concrete error carries the cause wrapped alongside.
var (
	// ErrConfiguration reports an unusable entity mapping: no identity field,
	// an ambiguous one, or a key kind that cannot be ordered.
	ErrConfiguration = errors.New("configuration error")

	// ErrTranslation reports a predicate tree that cannot be compiled.
	ErrTranslation = errors.New("translation error")

	// ErrNotFound reports a single-entity lookup that matched nothing.
	ErrNotFound = errors.New("entity not found")

	// ErrConcurrencyConflict reports a write conflict raised by the store.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrTransactionFailure reports a failed commit.
	ErrTransactionFailure = errors.New("transaction failure")

	ErrDisposed = errors.New("persistence context disposed")
)
