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

// Package dfc is the execution façade: the one type applications
// actually hold onto. It owns a single engine connection, a policy
// registry bound to that connection's catalog, and the stream file and
// engine-side user functions HUMAN/LLM/KILL policies need. Everything
// else is a pure function of (statement, registry snapshot) called from
// Transform.
package dfc

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/mitchellh/hashstructure"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/reallocf/dfc-sql-rewriter/dfc/catalog"
	"github.com/reallocf/dfc-sql-rewriter/dfc/dfcerr"
	"github.com/reallocf/dfc-sql-rewriter/dfc/policy"
	"github.com/reallocf/dfc-sql-rewriter/dfc/resolver"
	"github.com/reallocf/dfc-sql-rewriter/dfc/rewrite"
	"github.com/reallocf/dfc-sql-rewriter/sql/ast"
	"github.com/reallocf/dfc-sql-rewriter/sql/parser"
)

// Config configures a new Rewriter. All fields are optional except DB,
// which may itself be nil for transform-only use (no catalog binding, no
// execute/fetch, and FinalizeAggregatePolicies returns an error whenever
// it has an AGGREGATE policy to evaluate).
type Config struct {
	DB             *sql.DB
	StreamFilePath string // temp file created if empty
	Resolver       resolver.ViolationResolver
	Logger         *logrus.Entry
	Tracer         opentracing.Tracer
}

// UDFRegistrar is the optional capability a database/sql driver exposes
// when it supports registering scalar functions directly on the engine
// connection and
// address_violating_rows(variadic) -> BOOLEAN user functions with the
// engine"). No driver in the retrieved pack implements this — DuckDB
// itself does, via its own Go binding — so this is an interface a caller's
// driver opts into, not a concrete registration call this module makes
// itself (see DESIGN.md: the module never links a DuckDB driver).
type UDFRegistrar interface {
	RegisterScalarFunction(name string, fn func(args ...interface{}) (interface{}, error)) error
}

// Rewriter is the execution façade applications hold onto.
type Rewriter struct {
	db       *sql.DB
	catalog  *catalog.Catalog
	registry *catalog.Registry
	resolver resolver.ViolationResolver
	stream   *resolver.StreamWriter
	log      *logrus.Entry
	tracer   opentracing.Tracer

	ownsStreamFile bool

	mu    sync.Mutex
	cache map[uint64]string
}

// New builds a Rewriter. If cfg.StreamFilePath is empty, a temp file is
// created and removed when Close is called. If cfg.DB's driver
// implements UDFRegistrar, kill and address_violating_rows are
// registered on it immediately.
func New(cfg Config) (*Rewriter, error) {
	log := cfg.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = opentracing.GlobalTracer()
	}
	res := cfg.Resolver
	if res == nil {
		res = resolver.NoopResolver{}
	}

	streamPath := cfg.StreamFilePath
	ownsFile := false
	if streamPath == "" {
		f, err := os.CreateTemp("", "dfc-stream-*.tsv")
		if err != nil {
			return nil, errors.Wrap(err, "creating default dfc stream file")
		}
		streamPath = f.Name()
		f.Close()
		ownsFile = true
	}

	cat := catalog.New(cfg.DB, log)
	reg := catalog.NewRegistry(cat, log)

	r := &Rewriter{
		db:             cfg.DB,
		catalog:        cat,
		registry:       reg,
		resolver:       res,
		stream:         resolver.NewStreamWriter(streamPath),
		log:            log,
		tracer:         tracer,
		ownsStreamFile: ownsFile,
		cache:          map[uint64]string{},
	}

	if registrar, ok := udfTarget(cfg.DB); ok {
		if err := r.registerUDFs(registrar); err != nil {
			return nil, errors.Wrap(err, "registering dfc engine functions")
		}
	}
	return r, nil
}

func udfTarget(db *sql.DB) (UDFRegistrar, bool) {
	if db == nil {
		return nil, false
	}
	registrar, ok := db.Driver().(UDFRegistrar)
	return registrar, ok
}

func (r *Rewriter) registerUDFs(registrar UDFRegistrar) error {
	if err := registrar.RegisterScalarFunction("kill", killFunc(r.log)); err != nil {
		return err
	}
	return registrar.RegisterScalarFunction("address_violating_rows", addressViolatingRowsFunc(r))
}

// killFunc is the engine-side kill() UDF: it always raises, surfacing as
// the engine's invalid-input exception.
func killFunc(log *logrus.Entry) func(args ...interface{}) (interface{}, error) {
	return func(args ...interface{}) (interface{}, error) {
		log.Info("dfc: KILLing due to dfc policy violation")
		return nil, dfcerr.ErrRuntimeViolation.New("row failed a KILL policy constraint")
	}
}

// addressViolatingRowsFunc is the engine-side address_violating_rows(...)
// UDF. Its last three arguments are always, in order: a comma-joined list
// of the leading arguments' column names, the policy's description, and
// the stream file path (not necessarily r.stream's path, since two
// Rewriter instances sharing one registered driver each carry their own
// stream file). It gives r.resolver first chance to repair the row; only
// when the resolver declines does the row get written to the stream file
// unrepaired for a human to pick up later.
func addressViolatingRowsFunc(r *Rewriter) func(args ...interface{}) (interface{}, error) {
	return func(args ...interface{}) (interface{}, error) {
		if len(args) < 3 {
			return false, nil
		}
		streamPath, _ := args[len(args)-1].(string)
		description, _ := args[len(args)-2].(string)
		namesCSV, _ := args[len(args)-3].(string)
		values := args[:len(args)-3]

		var columns []string
		if namesCSV != "" {
			columns = strings.Split(namesCSV, ",")
		}

		repaired, ok, err := r.resolver.Resolve(context.Background(), columns, values, description)
		if err != nil {
			r.log.WithError(err).Warn("dfc: violation resolver failed, routing row to stream file")
			ok = false
		}
		if ok {
			r.log.WithFields(logrus.Fields{"columns": columns, "repaired": repaired}).Debug("dfc: violation resolver repaired row")
			return true, nil
		}

		writer := r.stream
		if streamPath != "" && streamPath != r.stream.Path() {
			writer = resolver.NewStreamWriter(streamPath)
		}
		if err := writer.WriteRow("address_violating_rows", columns, values); err != nil {
			r.log.WithError(err).Warn("dfc: failed to write violating row to stream file")
		}
		return false, nil
	}
}

// RegisterPolicy binds p against the live catalog and, if it passes,
// adds it to the registry.
func (r *Rewriter) RegisterPolicy(ctx context.Context, p *policy.Policy) error {
	if err := r.registry.Register(ctx, p); err != nil {
		return err
	}
	r.invalidateCache()
	return nil
}

// DeletePolicy delegates to the registry's wildcard-matching delete.
func (r *Rewriter) DeletePolicy(source, sink, constraint string, action policy.Action) bool {
	found := r.registry.Delete(source, sink, constraint, action)
	if found {
		r.invalidateCache()
	}
	return found
}

// GetPolicies returns every registered policy, in registration order.
func (r *Rewriter) GetPolicies() []*policy.Policy {
	return r.registry.Get()
}

// Transform runs the parse/propagate/match/constrain/plan pipeline end to
// end and returns the rewritten SQL text, bubbling up parse errors.
func (r *Rewriter) Transform(ctx context.Context, query string) (string, error) {
	return r.transform(ctx, query, false)
}

// TransformBestEffort is Transform with its best-effort flag set: a parse
// failure returns the original query unchanged instead of an error.
func (r *Rewriter) TransformBestEffort(ctx context.Context, query string) string {
	out, _ := r.transform(ctx, query, true)
	return out
}

func (r *Rewriter) transform(ctx context.Context, query string, bestEffort bool) (string, error) {
	span, _ := opentracing.StartSpanFromContextWithTracer(ctx, r.tracer, "dfc.transform")
	defer span.Finish()

	if cached, ok := r.cached(query); ok {
		span.SetTag("dfc.cache_hit", true)
		return cached, nil
	}

	stmt, err := parser.ParseStatement(query)
	if err != nil {
		span.SetTag("error", true)
		if bestEffort {
			r.log.WithError(err).Warn("dfc: best-effort transform returning original query unchanged after parse failure")
			return query, nil
		}
		return "", dfcerr.ErrRewriteParse.New(err.Error())
	}

	out, err := r.rewriteStatement(stmt)
	if err != nil {
		span.SetTag("error", true)
		return "", err
	}

	span.SetTag("dfc.plan_shape", shapeTag(stmt))
	r.cachePut(query, out)
	return out, nil
}

func shapeTag(stmt ast.Statement) string {
	if sel, ok := stmt.(*ast.SelectStatement); ok {
		return rewrite.Classify(sel).String()
	}
	if _, ok := stmt.(*ast.InsertStatement); ok {
		return "insert"
	}
	return "unsupported"
}

func (r *Rewriter) rewriteStatement(stmt ast.Statement) (string, error) {
	switch s := stmt.(type) {
	case *ast.SelectStatement:
		return r.rewriteSelect(s)
	case *ast.InsertStatement:
		return r.rewriteInsert(s)
	default:
		return stmt.String(), nil
	}
}

func (r *Rewriter) rewriteSelect(s *ast.SelectStatement) (string, error) {
	matches := r.registry.MatchingSelect(rewrite.FromTables(s))
	if len(matches) == 0 {
		return s.String(), nil
	}
	propagated, rewriteMap := rewrite.PropagateColumns(s, neededColumns(matches))
	plan, err := rewrite.BuildPlan(propagated, matches, rewriteMap, r.stream.Path(), r.log)
	if err != nil {
		return "", err
	}
	return plan.String(), nil
}

func (r *Rewriter) rewriteInsert(ins *ast.InsertStatement) (string, error) {
	if ins.Select == nil {
		// INSERT ... VALUES carries no per-row predicate to gate against;
		// only a sink-only REMOVE/KILL constraint with zero sources could
		// conceivably apply, and without a SELECT there's nothing to add
		// a WHERE to. Passed through unchanged, as .4 requires
		// for statement shapes the rewriter does not model a rewrite for.
		return ins.String(), nil
	}
	matches := r.registry.MatchingInsert(ins.Table.Lower(), rewrite.FromTables(ins.Select))
	if len(matches) == 0 {
		return ins.String(), nil
	}
	propagatedSelect, rewriteMap := rewrite.PropagateColumns(ins.Select, neededColumns(matches))
	rewritten := *ins
	rewritten.Select = propagatedSelect
	plan, err := rewrite.BuildInsertPlan(&rewritten, matches, rewriteMap, r.stream.Path())
	if err != nil {
		return "", err
	}
	return plan.String(), nil
}

func neededColumns(matches []*policy.Policy) map[string][]string {
	sets := map[string]map[string]bool{}
	for _, p := range matches {
		for _, source := range p.Sources() {
			cols := p.SourceColumnsNeeded(source)
			if len(cols) == 0 {
				continue
			}
			if sets[source] == nil {
				sets[source] = map[string]bool{}
			}
			for _, c := range cols {
				sets[source][c] = true
			}
		}
	}
	out := make(map[string][]string, len(sets))
	for source, set := range sets {
		names := make([]string, 0, len(set))
		for c := range set {
			names = append(names, c)
		}
		out[source] = names
	}
	return out
}

// Execute transforms query and submits it to the engine.
func (r *Rewriter) Execute(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if r.db == nil {
		return nil, fmt.Errorf("dfc: Execute requires a database connection")
	}
	rewritten, err := r.Transform(ctx, query)
	if err != nil {
		return nil, err
	}
	span, ctx := opentracing.StartSpanFromContextWithTracer(ctx, r.tracer, "dfc.execute")
	defer span.Finish()

	res, err := r.db.ExecContext(ctx, rewritten)
	if err != nil {
		if dfcerr.ErrRuntimeViolation.Is(err) {
			span.SetTag("dfc.kill", true)
		}
		return nil, errors.Wrap(err, "executing dfc-rewritten query")
	}
	return res, nil
}

// FetchAll transforms query, submits it, and returns the resulting rows.
func (r *Rewriter) FetchAll(ctx context.Context, query string) (*sql.Rows, error) {
	if r.db == nil {
		return nil, fmt.Errorf("dfc: FetchAll requires a database connection")
	}
	rewritten, err := r.Transform(ctx, query)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, rewritten)
	if err != nil {
		return nil, errors.Wrap(err, "fetching dfc-rewritten query")
	}
	return rows, nil
}

// FetchOne transforms query, submits it, and returns the first row.
func (r *Rewriter) FetchOne(ctx context.Context, query string) (*sql.Row, error) {
	if r.db == nil {
		return nil, fmt.Errorf("dfc: FetchOne requires a database connection")
	}
	rewritten, err := r.Transform(ctx, query)
	if err != nil {
		return nil, err
	}
	return r.db.QueryRowContext(ctx, rewritten), nil
}

// Close releases the underlying database connection and, if the stream
// file was created by New (no explicit path was given), removes it.
func (r *Rewriter) Close() error {
	var err error
	if r.db != nil {
		err = r.db.Close()
	}
	if r.ownsStreamFile {
		_ = os.Remove(r.stream.Path())
	}
	return err
}

type cacheKey struct {
	Query  string
	Stamps []policyStamp
}

type policyStamp struct {
	ID         string
	Sources    []string
	Sink       string
	Constraint string
	Action     string
	Aggregate  bool
}

// cacheSignature returns a stable hash over (query text, registry
// snapshot), letting repeated Transform calls against an unchanged
// policy set skip the whole rewrite pipeline.
func (r *Rewriter) cacheSignature(query string) (uint64, error) {
	policies := r.registry.Get()
	stamps := make([]policyStamp, len(policies))
	for i, p := range policies {
		stamps[i] = policyStamp{
			ID:         p.ID().String(),
			Sources:    p.Sources(),
			Sink:       p.Sink(),
			Constraint: p.ConstraintSQL(),
			Action:     string(p.Action()),
			Aggregate:  p.Aggregate(),
		}
	}
	return hashstructure.Hash(cacheKey{Query: query, Stamps: stamps}, nil)
}

func (r *Rewriter) cached(query string) (string, bool) {
	sig, err := r.cacheSignature(query)
	if err != nil {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out, ok := r.cache[sig]
	return out, ok
}

func (r *Rewriter) cachePut(query, rewritten string) {
	sig, err := r.cacheSignature(query)
	if err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[sig] = rewritten
}

func (r *Rewriter) invalidateCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = map[uint64]string{}
}

// FinalizeAggregatePolicies runs the second-stage evaluation for every
// registered AGGREGATE policy whose sink is sinkTable: it
// re-aggregates each policy's stashed temp columns across the whole sink
// table and reports a violation message for every policy whose
// constraint failed, nil for those that held.
func (r *Rewriter) FinalizeAggregatePolicies(ctx context.Context, sinkTable string) (map[string]*string, error) {
	sinkTable = strings.ToLower(sinkTable)

	var aggPolicies []*policy.Policy
	for _, p := range r.registry.Get() {
		if p.Aggregate() && p.Sink() == sinkTable {
			aggPolicies = append(aggPolicies, p)
		}
	}
	result := map[string]*string{}
	if len(aggPolicies) == 0 {
		return result, nil
	}
	if r.db == nil {
		return nil, fmt.Errorf("dfc: FinalizeAggregatePolicies requires a database connection")
	}

	stmt, included, err := rewrite.BuildFinalizeQuery(sinkTable, aggPolicies)
	if err != nil {
		return nil, err
	}

	dest := make([]interface{}, len(included))
	verdicts := make([]sql.NullBool, len(included))
	for i := range verdicts {
		dest[i] = &verdicts[i]
	}
	if err := r.db.QueryRowContext(ctx, stmt.String()).Scan(dest...); err != nil {
		return nil, errors.Wrap(err, "scanning finalize_aggregate_policies result")
	}

	for i, p := range included {
		id := p.ID().String()
		if verdicts[i].Valid && verdicts[i].Bool {
			result[id] = nil
			continue
		}
		msg := p.Description()
		if msg == "" {
			msg = "dfc policy violation (" + p.Identifier() + "): " + p.ConstraintSQL()
		}
		result[id] = &msg
	}
	return result, nil
}
