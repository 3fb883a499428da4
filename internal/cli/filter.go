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
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tomoncle/entitygate/ordering"
	"github.com/tomoncle/entitygate/predicate"
)

// FilterResult is the canonical form of a filter (and sort) string.
type FilterResult struct {
	Filter string   `json:"filter"`
	Fields []string `json:"fields,omitempty"`
	Sort   string   `json:"sort,omitempty"`
}

// NewFilterCommand creates the filter command.
func NewFilterCommand(rootOpts *RootOptions) *cobra.Command {
	var sort string
	cmd := &cobra.Command{
		Use:   "filter <filter-string>",
		Short: "Parse a filter string and print its canonical form",
		Long: `Parse a filter string such as "(Status='Paid') AND (Id<>3)" and
print it the way the predicate compiler writes it, with the fields it
references. --sort does the same for a sort string.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFilter(rootOpts, args[0], sort, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&sort, "sort", "s", "", "sort string to normalise, e.g. \"Status desc, Id\"")
	return cmd
}

func runFilter(opts *RootOptions, filter, sort string, w io.Writer) error {
	out := output{format: opts.Format, w: w}

	p, err := predicate.Parse(filter)
	if err != nil {
		return out.failure(err, nil)
	}
	canonical, err := predicate.Compile(p)
	if err != nil {
		return out.failure(err, nil)
	}
	res := FilterResult{Filter: canonical, Fields: predicate.Fields(p)}
	if sort != "" {
		s, err := ordering.ParseSort(sort)
		if err != nil {
			return out.failure(err, nil)
		}
		res.Sort = s.String()
	}

	return out.success(res, func(w io.Writer) {
		fmt.Fprintln(w, res.Filter)
		fmt.Fprintf(w, "fields: %s\n", strings.Join(res.Fields, ", "))
		if res.Sort != "" {
			fmt.Fprintf(w, "sort: %s\n", res.Sort)
		}
	})
}
