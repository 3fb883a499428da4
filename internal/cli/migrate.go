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
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tomoncle/entitygate/database"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the tables of the registered models",
		Long: `Connect with the configured database and run the pending schema
bootstrap steps, then list every applied migration.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), rootOpts, cmd.OutOrStdout())
		},
	}
}

func runMigrate(ctx context.Context, opts *RootOptions, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := output{format: opts.Format, w: w}

	cfg, err := database.LoadConfig(opts.Config)
	if err != nil {
		return out.failure(err, nil)
	}
	db, err := database.InitDatabaseWithOptions(cfg, true)
	if err != nil {
		return out.failure(err, nil)
	}
	defer func() { _ = database.CloseDB() }()

	applied, err := database.NewMigrationManager(db, database.GetLogger()).GetAppliedMigrations(ctx)
	if err != nil {
		return out.failure(fmt.Errorf("list migrations: %w", err), nil)
	}
	return out.success(applied, func(w io.Writer) {
		for _, m := range applied {
			fmt.Fprintf(w, "%s  %-24s %s\n", m.Version, m.Name, m.AppliedAt.Format("2006-01-02 15:04:05"))
		}
	})
}
