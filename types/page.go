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

// Unpaged is the total reported for a result that was not paginated.
const Unpaged = -1

// PageRequest describes a page of a filtered, sorted result set. Filter and
// Sort are the textual forms produced by the predicate compiler and the sort
// planner; both may be empty.
type PageRequest struct {
	page     int
	pageSize int
	filter   string
	sort     string
}

// NewPageRequest constructs a PageRequest. A non-positive page or pageSize
// requests the whole result set.
func NewPageRequest(page int, pageSize int, filter string, sort string) *PageRequest {
	return &PageRequest{page: page, pageSize: pageSize, filter: filter, sort: sort}
}

// NewDefaultPageRequest constructs a PageRequest with no filter or ordering.
func NewDefaultPageRequest(page int, pageSize int) *PageRequest {
	return NewPageRequest(page, pageSize, "", "")
}

func (p *PageRequest) GetPage() int     { return p.page }
func (p *PageRequest) GetPageSize() int { return p.pageSize }
func (p *PageRequest) GetFilter() string {
	return p.filter
}
func (p *PageRequest) GetSort() string { return p.sort }

// Paged reports whether the request asks for a single page.
func (p *PageRequest) Paged() bool {
	return p.pageSize > 0 && p.page > 0
}

// GetOffset returns the number of rows to skip, or 0 when unpaged.
func (p *PageRequest) GetOffset() int {
	if !p.Paged() {
		return 0
	}
	return (p.page - 1) * p.pageSize
}

// Pagination holds paged result items along with pagination metadata.
// Total is Unpaged when the items are the whole result set.
type Pagination[T any] struct {
	Page     int
	PageSize int
	Total    int
	Items    []*T
}

// NewDefaultPagination constructs an empty pagination container.
func NewDefaultPagination[T any](page int, pageSize int) *Pagination[T] {
	return &Pagination[T]{page, pageSize, Unpaged, make([]*T, 0)}
}
