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
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomoncle/entitygate/database"
	"github.com/tomoncle/entitygate/utils"
)

var errUnhealthy = errors.New("database unhealthy")

// NewHealthCommand creates the health command.
func NewHealthCommand(rootOpts *RootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:           "health",
		Short:         "Ping the configured database and report pool statistics",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return runHealth(ctx, rootOpts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", utils.EnvDefaultDuration("ENTITYGATE_HEALTH_TIMEOUT", 10*time.Second), "overall timeout")
	return cmd
}

func runHealth(ctx context.Context, opts *RootOptions, w io.Writer) error {
	out := output{format: opts.Format, w: w}

	cfg, err := database.LoadConfig(opts.Config)
	if err != nil {
		return out.failure(err, nil)
	}
	if _, err := database.InitDatabaseWithOptions(cfg, false); err != nil {
		return out.failure(err, &database.HealthStatus{LastError: err.Error(), LastCheckTime: time.Now()})
	}
	defer func() { _ = database.CloseDB() }()

	status := database.GetHealthStatus(ctx)
	if !status.Healthy {
		return out.failure(fmt.Errorf("%w: %s", errUnhealthy, status.LastError), status)
	}
	return out.success(status, func(w io.Writer) {
		fmt.Fprintf(w, "healthy  type=%s  response=%s  open=%d idle=%d max=%d\n",
			cfg.ConnectionConfig.Type, status.ResponseTime.Round(time.Microsecond),
			status.ActiveConns, status.IdleConns, status.MaxOpenConns)
	})
}
