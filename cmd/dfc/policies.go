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
	"database/sql"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	dfcpkg "github.com/reallocf/dfc-sql-rewriter"
	"github.com/reallocf/dfc-sql-rewriter/dfc/config"
	"github.com/reallocf/dfc-sql-rewriter/dfc/policy"
)

var validate bool

func newPoliciesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policies",
		Short: "List or validate a policy-set file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(policiesFile) == "" {
				return fmt.Errorf("--policies is required")
			}

			set, err := config.Load(policiesFile)
			if err != nil {
				return err
			}
			built, err := set.Build()
			if err != nil {
				return err
			}

			if !validate {
				for _, p := range built {
					cmd.Println(p.String())
				}
				return nil
			}
			return validateAgainstCatalog(cmd, built)
		},
	}
	cmd.Flags().BoolVar(&validate, "validate", false, "bind every policy against a live catalog (requires --dsn/--driver)")
	cmd.Flags().StringVar(&dsn, "dsn", "", "data source name for the engine connection")
	cmd.Flags().StringVar(&driverName, "driver", "duckdb", "database/sql driver name registered by the caller")
	return cmd
}

func validateAgainstCatalog(cmd *cobra.Command, policies []*policy.Policy) error {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return fmt.Errorf("opening %s connection: %w", driverName, err)
	}
	defer db.Close()

	rewriter, err := dfcpkg.New(dfcpkg.Config{DB: db})
	if err != nil {
		return err
	}
	defer rewriter.Close()

	ctx := cmd.Context()
	failed := 0
	for _, p := range policies {
		if err := rewriter.RegisterPolicy(ctx, p); err != nil {
			failed++
			cmd.PrintErrf("%s: %v\n", p.Identifier(), err)
			continue
		}
		cmd.Printf("%s: ok\n", p.Identifier())
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d policies failed validation", failed, len(policies))
	}
	return nil
}
