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

// Command dfc is the DFC SQL rewriter CLI: inspect and exercise the
// rewriter pipeline against a policy-set file without embedding it in an
// application. No `serve` subcommand exists — this module does not run a
// network server.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		logrus.WithError(err).Error("dfc: command failed")
		os.Exit(1)
	}
}
