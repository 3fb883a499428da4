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

package ordering

// Pageable is a query that can be narrowed to a window of rows.
type Pageable[Q any] interface {
	Window(skip, take int) Q
}

// Paged reports whether pageSize and pageIndex describe a page. Anything
// non-positive means the whole result set.
func Paged(pageSize, pageIndex int) bool {
	return pageSize > 0 && pageIndex > 0
}

// Skip returns the rows before page pageIndex (1-based).
func Skip(pageSize, pageIndex int) int {
	if !Paged(pageSize, pageIndex) {
		return 0
	}
	return (pageIndex - 1) * pageSize
}

// ApplyPagination narrows q to page pageIndex of size pageSize. When the
// inputs do not describe a page q is returned unchanged and paged is false;
// callers then report types.Unpaged as the total.
func ApplyPagination[Q Pageable[Q]](q Q, pageSize, pageIndex int) (out Q, paged bool) {
	if !Paged(pageSize, pageIndex) {
		return q, false
	}
	return q.Window(Skip(pageSize, pageIndex), pageSize), true
}

// Window returns the slice of items for page pageIndex.
func Window[T any](items []T, pageSize, pageIndex int) []T {
	if !Paged(pageSize, pageIndex) {
		return items
	}
	skip := Skip(pageSize, pageIndex)
	if skip >= len(items) {
		return items[:0]
	}
	end := skip + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[skip:end]
}
