/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
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

/*
Result Set Implementation
=========================

Tabular results for the admin surface: cluster status, audit queries
and membership listings all come back as a ResultSet -- named columns
plus string rows -- which the console renders and scripts consume as
CSV. Row iteration follows the usual Next/Scan shape so the console
code reads like any database client.
*/
package sdk

import (
	"fmt"
	"strconv"
)

// ResultSet is an ordered tabular result.
type ResultSet struct {
	ID      string
	Columns []string
	Rows    [][]string

	pos int // iteration position, 0 = before first row
}

// NewResultSet builds an empty result set with the given columns.
func NewResultSet(columns ...string) *ResultSet {
	return &ResultSet{ID: generateID("rs"), Columns: columns}
}

// Append adds one row; the value count must match the column count.
func (rs *ResultSet) Append(values ...string) error {
	if len(values) != len(rs.Columns) {
		return fmt.Errorf("row has %d values, result set has %d columns", len(values), len(rs.Columns))
	}
	rs.Rows = append(rs.Rows, values)
	return nil
}

// Len reports the number of rows.
func (rs *ResultSet) Len() int { return len(rs.Rows) }

// Next advances the iteration; false when exhausted.
func (rs *ResultSet) Next() bool {
	if rs.pos >= len(rs.Rows) {
		return false
	}
	rs.pos++
	return true
}

// Scan copies the current row into dest pointers (*string supported).
func (rs *ResultSet) Scan(dest ...*string) error {
	if rs.pos == 0 || rs.pos > len(rs.Rows) {
		return fmt.Errorf("Scan called outside a Next loop")
	}
	row := rs.Rows[rs.pos-1]
	if len(dest) > len(row) {
		return fmt.Errorf("too many scan targets: %d for %d columns", len(dest), len(row))
	}
	for i, d := range dest {
		*d = row[i]
	}
	return nil
}

// Reset rewinds the iteration to before the first row.
func (rs *ResultSet) Reset() { rs.pos = 0 }

// ColumnIndex returns a column's position, or -1.
func (rs *ResultSet) ColumnIndex(name string) int {
	for i, c := range rs.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// StatusResultSet renders cluster status probes as a table.
func StatusResultSet(statuses []NodeStatus) *ResultSet {
	rs := NewResultSet("NODE", "ADDR", "STATE", "TERM", "LAST LOG", "COMMITTED")
	for _, st := range statuses {
		rs.Append(
			strconv.FormatUint(st.NodeID, 10),
			st.Addr,
			st.State,
			strconv.FormatUint(st.Term, 10),
			st.LastLogID.String(),
			st.Committed.String(),
		)
	}
	return rs
}
