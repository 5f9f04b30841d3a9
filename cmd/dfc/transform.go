// Copyright 2026 The DFC SQL Rewriter Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	dfc "github.com/reallocf/dfc-sql-rewriter"
	"github.com/reallocf/dfc-sql-rewriter/dfc/config"
)

var (
	dsn        string
	driverName string
)

func newTransformCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transform <query>",
		Short: "Print the rewritten SQL for a query under a policy file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := args[0]
			if strings.TrimSpace(policiesFile) == "" {
				return fmt.Errorf("--policies is required")
			}

			db, err := sql.Open(driverName, dsn)
			if err != nil {
				return fmt.Errorf("opening %s connection: %w", driverName, err)
			}
			defer db.Close()

			rewriter, err := dfc.New(dfc.Config{DB: db})
			if err != nil {
				return err
			}
			defer rewriter.Close()

			if err := loadAndRegister(cmd.Context(), rewriter, policiesFile); err != nil {
				return err
			}

			out, err := rewriter.Transform(cmd.Context(), query)
			if err != nil {
				return err
			}
			cmd.Println(out)
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "", "data source name for the engine connection")
	cmd.Flags().StringVar(&driverName, "driver", "duckdb", "database/sql driver name registered by the caller (this module links no driver itself)")
	return cmd
}

func loadAndRegister(ctx context.Context, rewriter *dfc.Rewriter, path string) error {
	set, err := config.Load(path)
	if err != nil {
		return err
	}
	policies, err := set.Build()
	if err != nil {
		return err
	}
	for _, p := range policies {
		if err := rewriter.RegisterPolicy(ctx, p); err != nil {
			return fmt.Errorf("registering %s: %w", p.Identifier(), err)
		}
	}
	return nil
}
