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

// Package dfcerr is the shared error-kind taxonomy for the DFC
// rewriter. It is kept as its own leaf package (rather than living in
// the root dfc package alongside the execution façade) so that
// dfc/policy and dfc/catalog can both depend on it without an import
// cycle back through the façade that depends on them.
package dfcerr

import errors "gopkg.in/src-d/go-errors.v1"

// Policy construction and registration errors. Each is a NewKind so
// callers can match with errors.Is / kind.Is rather than string-sniffing,
// the same taxonomy pattern the teacher repo builds its sql errors with.
var (
	ErrPolicyParse              = errors.NewKind("policy constraint is not a valid boolean expression: %s")
	ErrInvalidIdentifier        = errors.NewKind("%q is not a valid SQL identifier for a %s")
	ErrUnqualifiedColumn        = errors.NewKind("constraint references unqualified column %q; every column must be table-qualified")
	ErrIllegalAggregationTarget = errors.NewKind("aggregate %s references column %q of table %q, which is neither a declared source nor known to the policy")
	ErrSourceNotAggregated      = errors.NewKind("source column %q is referenced outside of any aggregate function; source columns must be aggregated")
	ErrMissingSourceOrSink      = errors.NewKind("policy must declare at least one source or a sink")
	ErrUnknownTable             = errors.NewKind("table %q is not present in the catalog")
	ErrUnknownColumn            = errors.NewKind("column %q is not present in table %q")
	ErrMissingValidColumn       = errors.NewKind("sink %q must have a boolean column named \"valid\" for INVALIDATE/INVALIDATE_MESSAGE policies")
	ErrRewriteParse             = errors.NewKind("could not parse query for rewriting: %s")
	ErrRuntimeViolation         = errors.NewKind("KILLing due to dfc policy violation: %s")
)
