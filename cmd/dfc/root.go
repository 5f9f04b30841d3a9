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
	"github.com/spf13/cobra"
)

var policiesFile string

// NewRootCmd builds the dfc CLI's root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dfc",
		Short: "Data Flow Control SQL rewriter",
		Long: `dfc parses and rewrites DuckDB-dialect SQL so that registered
Data Flow Control policies are enforced at execution time.`,
	}
	cmd.PersistentFlags().StringVar(&policiesFile, "policies", "", "path to a policy-set YAML file")
	cmd.AddCommand(newTransformCmd())
	cmd.AddCommand(newPoliciesCmd())
	return cmd
}
