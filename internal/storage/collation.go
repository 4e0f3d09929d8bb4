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
Key Ordering and Collation
==========================

Two orderings matter in this package.

Log keys (machine order):
=========================

Log entries are stored under "log/" + an 8-byte big-endian index, so a
byte-wise key scan visits them in strictly increasing index order. This
is what lets RaftStore rebuild the log-id index with a single prefix
Scan and lets PurgeUpto stop at the first key past the purge point.
Never store a decimal-formatted index: "10" would sort before "9".

Display keys (human order):
===========================

Operator-facing listings -- snapshot ids, cluster names, node display
names in the admin console -- are sorted with a locale-aware collator
instead:

  1. BINARY (default):
     - Byte-by-byte comparison; fastest, not locale-aware

  2. NOCASE:
     - Case-insensitive comparison ("node-A" groups with "node-a")

  3. UNICODE:
     - Unicode Collation Algorithm ordering; accented characters land
       where a human expects them

  4. Locale-specific (e.g. "en_US", "de_DE"):
     - Language-specific rules where an operator base demands them

References:
===========

  - Unicode Technical Standard #10: Unicode Collation Algorithm
  - ICU Collation: https://unicode-org.github.io/icu/userguide/collation/
*/
package storage

import (
	"bytes"
	"encoding/binary"
	"strings"
	"unicode"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// EncodeIndexKey renders a log index as a byte-sortable key suffix.
func EncodeIndexKey(index uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], index)
	return b[:]
}

// DecodeIndexKey extracts the index from a full "log/..." key. Returns
// false for keys that are not log-entry keys.
func DecodeIndexKey(key []byte) (uint64, bool) {
	if !bytes.HasPrefix(key, logPrefix) {
		return 0, false
	}
	suffix := key[len(logPrefix):]
	if len(suffix) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(suffix), true
}

// CollationType names a display-ordering rule.
type CollationType string

const (
	CollationBinary  CollationType = "BINARY"
	CollationNoCase  CollationType = "NOCASE"
	CollationUnicode CollationType = "UNICODE"
)

// Collator compares operator-facing strings under one collation rule.
type Collator struct {
	kind CollationType
	coll *collate.Collator
}

// NewCollator builds a collator. Unrecognized names are treated as a
// BCP-47 locale tag ("de_DE", "sv-SE"); a tag that fails to parse falls
// back to BINARY.
func NewCollator(kind string) *Collator {
	switch CollationType(strings.ToUpper(kind)) {
	case CollationBinary, "":
		return &Collator{kind: CollationBinary}
	case CollationNoCase:
		return &Collator{kind: CollationNoCase}
	case CollationUnicode:
		return &Collator{kind: CollationUnicode, coll: collate.New(language.Und)}
	}

	tag, err := language.Parse(strings.ReplaceAll(kind, "_", "-"))
	if err != nil {
		return &Collator{kind: CollationBinary}
	}
	return &Collator{kind: CollationType(kind), coll: collate.New(tag)}
}

// Compare returns -1, 0 or +1 for a against b under this collation.
func (c *Collator) Compare(a, b string) int {
	switch {
	case c.coll != nil:
		return c.coll.CompareString(a, b)
	case c.kind == CollationNoCase:
		return strings.Compare(foldCase(a), foldCase(b))
	default:
		return strings.Compare(a, b)
	}
}

// Equal reports whether a and b compare equal under this collation.
func (c *Collator) Equal(a, b string) bool {
	return c.Compare(a, b) == 0
}

// SortStrings sorts ss in place under this collation.
func (c *Collator) SortStrings(ss []string) {
	if c.coll != nil {
		c.coll.SortStrings(ss)
		return
	}
	insertionSort(ss, c.Compare)
}

func foldCase(s string) string {
	return strings.Map(unicode.ToLower, s)
}

func insertionSort(ss []string, cmp func(a, b string) int) {
	for i := 1; i < len(ss); i++ {
		for j := i; j > 0 && cmp(ss[j-1], ss[j]) > 0; j-- {
			ss[j-1], ss[j] = ss[j], ss[j-1]
		}
	}
}
