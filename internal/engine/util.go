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

package engine

// nextIndex returns the index a newly appended entry would receive.
func nextIndex(s *RaftState) uint64 {
	return nextIndexOf(s.LastLogID())
}

// nextIndexOf returns the index following o, or 0 when o is absent.
func nextIndexOf(o OptionalLogID) uint64 {
	if !o.Valid {
		return 0
	}
	return o.ID.Index + 1
}

// othersOf returns every node in m except self, for sizing replication
// streams.
func othersOf(m Membership, self NodeID) []NodeID {
	all := m.AllNodes()
	out := make([]NodeID, 0, len(all))
	for _, id := range all {
		if id != self {
			out = append(out, id)
		}
	}
	return out
}
