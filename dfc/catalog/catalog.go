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

// Package catalog is the table/column catalog and the policy
// registry that binds policies against it. The catalog queries
// information_schema through the standard database/sql interface; the
// caller supplies the *sql.DB (e.g. backed by a DuckDB driver) since this
// module does not import one itself (see DESIGN.md).
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
)

// Catalog caches table/column metadata for one engine connection,
// queried from information_schema.columns.
type Catalog struct {
	db     *sql.DB
	log    *logrus.Entry
	mu     sync.RWMutex
	tables map[string]map[string]string // table -> column -> data_type, all lowercase
}

// New wraps db with a per-rewriter catalog cache.
func New(db *sql.DB, log *logrus.Entry) *Catalog {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Catalog{db: db, log: log, tables: map[string]map[string]string{}}
}

// Invalidate drops the entire cache, forcing the next lookup to re-query
// information_schema. Callers should invalidate after DDL they know
// about but the rewriter didn't issue itself.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables = map[string]map[string]string{}
}

// HasTable reports whether table exists, case-insensitively.
func (c *Catalog) HasTable(ctx context.Context, table string) (bool, error) {
	cols, err := c.Columns(ctx, table)
	if err != nil {
		return false, err
	}
	return cols != nil, nil
}

// Columns returns the column-name → data-type map for table (both
// lowercased), or nil if the table does not exist.
func (c *Catalog) Columns(ctx context.Context, table string) (map[string]string, error) {
	key := strings.ToLower(table)

	c.mu.RLock()
	cached, ok := c.tables[key]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	cols, err := c.queryColumns(ctx, key)
	if err != nil {
		return nil, errors.Wrapf(err, "querying catalog for table %q", table)
	}

	c.mu.Lock()
	c.tables[key] = cols
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{"table": key, "columns": len(cols)}).Debug("dfc: catalog cache populated")
	return cols, nil
}

// ColumnType returns the data type of table.column (lowercased on both
// sides), and whether that column exists.
func (c *Catalog) ColumnType(ctx context.Context, table, column string) (string, bool, error) {
	cols, err := c.Columns(ctx, table)
	if err != nil {
		return "", false, err
	}
	if cols == nil {
		return "", false, nil
	}
	dt, ok := cols[strings.ToLower(column)]
	return dt, ok, nil
}

func (c *Catalog) queryColumns(ctx context.Context, table string) (map[string]string, error) {
	if c.db == nil {
		return nil, fmt.Errorf("catalog has no database connection configured")
	}
	rows, err := c.db.QueryContext(ctx, `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE lower(table_name) = lower(?)
	`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := map[string]string{}
	for rows.Next() {
		var name interface{}
		var dataType interface{}
		if err := rows.Scan(&name, &dataType); err != nil {
			return nil, err
		}
		// database/sql drivers disagree on whether information_schema text
		// columns come back as string, []byte, or sql.RawBytes; cast
		// normalizes whichever the caller's driver chose, the same
		// defensive coercion dfc/config applies to decoded YAML scalars.
		cols[strings.ToLower(cast.ToString(name))] = strings.ToLower(cast.ToString(dataType))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, nil
	}
	return cols, nil
}

// IsBooleanType reports whether a catalog data-type string denotes a
// boolean column, tolerant of the handful of spellings engines use.
func IsBooleanType(dataType string) bool {
	switch strings.ToLower(dataType) {
	case "boolean", "bool":
		return true
	default:
		return false
	}
}
