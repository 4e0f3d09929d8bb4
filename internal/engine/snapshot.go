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

// InstallSnapshot adopts a fully received snapshot on a follower or
// learner. A snapshot whose coverage does not extend past the local
// committed point is obsolete: it is cancelled and nothing changes.
// Otherwise Committed jumps to the snapshot's last log id, the
// committed membership is taken from the snapshot, and every local log
// entry the snapshot covers is purged -- including a log that had
// diverged, which is safe to drop wholesale because the snapshot's
// coverage is by definition quorum-agreed.
//
// Committed moves before SnapshotMeta inside this call, so the
// invariants relating them hold backwards for its duration; both are
// consistent again before the final validation runs.
func (e *Engine) InstallSnapshot(meta SnapshotMeta) {
	e.validationDisabled = true
	e.installSnapshot(meta)
	e.validationDisabled = false
	e.validate()
}

func (e *Engine) installSnapshot(meta SnapshotMeta) {
	s := e.State

	if meta.LastLogID.LessEqual(s.Committed) {
		e.push(Command{Kind: CmdCancelSnapshot, SnapshotMeta: meta})
		return
	}

	if !e.updateSnapshotMeta(meta) {
		return
	}

	last := meta.LastLogID.ID

	// A local entry at the snapshot's boundary index that disagrees with
	// it means everything uncommitted here diverged from the
	// quorum-agreed history; delete it all. Entries at or below the local
	// committed point cannot conflict.
	if local := s.LogIDs.Get(last.Index); local.Valid && !local.ID.Equal(last) {
		e.truncateLogs(nextIndexOf(s.Committed))
	}

	s.Committed = meta.LastLogID
	if s.LastApplied.Less(meta.LastLogID) {
		s.LastApplied = meta.LastLogID
	}
	e.updateCommittedMembership(meta.LastMembership)

	e.push(Command{Kind: CmdInstallSnapshot, Metrics: MetricsLocalData | MetricsCluster, SnapshotMeta: meta})

	// Logs at or below the snapshot boundary are all covered by it; a
	// shorter local log would otherwise be left with a hole.
	e.purgeLog(last)
}

// FinishBuildingSnapshot records the metadata of a snapshot this node
// built locally (as opposed to one received from a leader). The state
// machine already holds everything the snapshot covers, so no install
// is pushed; only log compaction may follow.
func (e *Engine) FinishBuildingSnapshot(meta SnapshotMeta) {
	if !e.updateSnapshotMeta(meta) {
		return
	}
	e.purgeInSnapshotLog()
	e.validate()
}

// updateSnapshotMeta installs meta if it is strictly newer than the
// snapshot already held, reporting whether it did.
func (e *Engine) updateSnapshotMeta(meta SnapshotMeta) bool {
	s := e.State
	if meta.LastLogID.LessEqual(s.SnapshotMeta.LastLogID) {
		return false
	}
	s.SnapshotMeta = meta
	e.Output.metricsChanged |= MetricsLocalData
	return true
}

// purgeInSnapshotLog compacts log entries already covered by the
// current snapshot, if enough of them have accumulated.
func (e *Engine) purgeInSnapshotLog() {
	if upto := e.calcPurgeUpto(); upto.Valid {
		e.purgeLog(upto.ID)
	}
}

// calcPurgeUpto returns the log id up to which to purge, inclusive, or
// none. Config.MaxInSnapshotLogToKeep snapshot-covered entries are kept
// around so slightly-lagging followers can be caught up by ordinary
// replication rather than a snapshot transfer, and purges are batched:
// nothing happens until Config.PurgeBatchSize entries past the last
// purge point are eligible.
func (e *Engine) calcPurgeUpto() OptionalLogID {
	s := e.State
	maxKeep := e.Config.MaxInSnapshotLogToKeep
	batch := e.Config.PurgeBatchSize

	purgeEnd := nextIndexOf(s.SnapshotMeta.LastLogID)
	if purgeEnd <= maxKeep {
		return NoLogID()
	}
	purgeEnd -= maxKeep

	if nextIndexOf(s.LastPurged)+batch > purgeEnd {
		return NoLogID()
	}

	return s.LogIDs.Get(purgeEnd - 1)
}

// purgeLog discards log entries up to and including upto, recording it
// as the new purge watermark. A no-op if that point is already purged.
func (e *Engine) purgeLog(upto LogID) {
	s := e.State
	if SomeLogID(upto).LessEqual(s.LastPurged) {
		return
	}

	s.LogIDs.Purge(upto)
	s.LastPurged = SomeLogID(upto)

	e.push(Command{Kind: CmdPurgeLog, Metrics: MetricsLocalData, Upto: upto})
}
