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

// EntityState is the lifecycle state of an instance tracked by a
// persistence context.
type EntityState int

const (
	Detached EntityState = iota
	Unchanged
	Added
	Modified
	Deleted
)

var _ BaseEnum = Detached

var entityStateNames = map[EntityState][2]string{
	Detached:  {"Detached", "not tracked by the context"},
	Unchanged: {"Unchanged", "tracked and equal to the stored row"},
	Added:     {"Added", "pending insert"},
	Modified:  {"Modified", "pending update"},
	Deleted:   {"Deleted", "pending delete"},
}

func (s EntityState) IsValid() bool {
	_, ok := entityStateNames[s]
	return ok
}

func (s EntityState) Number() int {
	if !s.IsValid() {
		return IllegalValue
	}
	return int(s)
}

func (s EntityState) Name() string {
	if n, ok := entityStateNames[s]; ok {
		return n[0]
	}
	return IllegalName
}

func (s EntityState) Desc() string {
	if n, ok := entityStateNames[s]; ok {
		return n[1]
	}
	return IllegalDesc
}

func (s EntityState) String() string { return s.Name() }

// Pending reports whether the state still has to be written to the store.
func (s EntityState) Pending() bool {
	return s == Added || s == Modified || s == Deleted
}
