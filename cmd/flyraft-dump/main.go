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
flyraft-dump - FlyRaft State Inspection Tool

Dumps a node's durable consensus state: the persisted vote, snapshot
metadata, log range, and storage statistics. Works in two modes:

Local mode reads a data directory directly (the node must be stopped):

    flyraft-dump --data-dir /var/lib/flyraft

Remote mode probes running nodes over the wire:

    flyraft-dump --host node1,node2,node3 --port 9998
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"flyraft/internal/sdk"
	"flyraft/internal/storage"
)

var (
	dataDir = flag.String("data-dir", "", "Read a node's data directory directly (node must be stopped)")
	host    = flag.String("host", "", "Probe running nodes (comma-separated hosts)")
	port    = flag.String("port", "9998", "Default port for hosts without one")
	verbose = flag.Bool("verbose", false, "Also dump every log entry id")
)

func main() {
	flag.Parse()

	switch {
	case isLocalMode() && isRemoteMode():
		fmt.Fprintln(os.Stderr, "use --data-dir or --host, not both")
		os.Exit(2)
	case isLocalMode():
		if err := dumpLocal(*dataDir); err != nil {
			fmt.Fprintf(os.Stderr, "dump failed: %v\n", err)
			os.Exit(1)
		}
	case isRemoteMode():
		if err := dumpRemote(parseHosts(*host, *port)); err != nil {
			fmt.Fprintf(os.Stderr, "dump failed: %v\n", err)
			os.Exit(1)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func isLocalMode() bool  { return *dataDir != "" }
func isRemoteMode() bool { return *host != "" }

// parseHosts expands "node1,node2:9999" into full host:port addresses,
// applying the default port where one is missing.
func parseHosts(hostStr, portStr string) []string {
	out := []string{}
	for _, h := range strings.Split(hostStr, ",") {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if !strings.Contains(h, ":") {
			h = h + ":" + portStr
		}
		out = append(out, h)
	}
	return out
}

// isConnectionError reports whether an error looks like a transport
// failure rather than a node-side rejection.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"EOF",
		"i/o timeout",
		"no route to host",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// formatFileSize renders a byte count for humans.
func formatFileSize(size int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case size >= gb:
		return fmt.Sprintf("%.2f GB", float64(size)/float64(gb))
	case size >= mb:
		return fmt.Sprintf("%.2f MB", float64(size)/float64(mb))
	case size >= kb:
		return fmt.Sprintf("%.2f KB", float64(size)/float64(kb))
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}

func dumpLocal(dir string) error {
	eng, err := storage.NewStorageEngine(storage.StorageConfig{DataDir: dir, Type: storage.EngineTypeDisk})
	if err != nil {
		return err
	}
	defer eng.Close()

	store := storage.NewRaftStore(eng)

	vote, err := store.Vote()
	if err != nil {
		return err
	}
	fmt.Printf("Vote:          %s\n", vote)

	if meta, ok, err := store.SnapshotMeta(); err != nil {
		return err
	} else if ok {
		fmt.Printf("Snapshot:      %s\n", meta)
	} else {
		fmt.Printf("Snapshot:      none\n")
	}

	state, err := store.GetInitialState(vote.NodeID)
	if err != nil {
		return err
	}
	fmt.Printf("Last log id:   %s\n", state.LastLogID())
	fmt.Printf("Committed:     %s\n", state.Committed)
	fmt.Printf("Last purged:   %s\n", state.LastPurged)
	fmt.Printf("Membership:    %s\n", state.EffectiveMembership)

	stats := eng.Stats()
	fmt.Printf("Storage:       %d keys, data %s, wal %s\n",
		stats.KeyCount, formatFileSize(stats.DataSize), formatFileSize(stats.WALSize))

	if *verbose && state.LastLogID().Valid {
		begin := uint64(0)
		if state.LastPurged.Valid {
			begin = state.LastPurged.ID.Index + 1
		}
		entries, err := store.EntryRange(begin, state.LastLogID().ID.Index+1)
		if err != nil {
			return err
		}
		fmt.Println("\nLog entries:")
		for _, ent := range entries {
			fmt.Printf("  %s\n", ent.GetLogID())
		}
	}
	return nil
}

func dumpRemote(hosts []string) error {
	if len(hosts) == 0 {
		return fmt.Errorf("no hosts given")
	}
	client := NewHAClient(hosts)
	statuses := client.Statuses()
	if len(statuses) == 0 {
		return fmt.Errorf("no node answered on %s", strings.Join(hosts, ", "))
	}

	rs := sdk.StatusResultSet(statuses)
	widths := make([]int, len(rs.Columns))
	for i, c := range rs.Columns {
		widths[i] = len(c)
	}
	for _, row := range rs.Rows {
		for i, v := range row {
			if len(v) > widths[i] {
				widths[i] = len(v)
			}
		}
	}
	for i, c := range rs.Columns {
		fmt.Printf("%-*s  ", widths[i], c)
	}
	fmt.Println()
	for _, row := range rs.Rows {
		for i, v := range row {
			fmt.Printf("%-*s  ", widths[i], v)
		}
		fmt.Println()
	}
	return nil
}

// HAClient probes a list of hosts, tolerating individual failures.
type HAClient struct {
	hosts []string
}

// NewHAClient builds a client over the host list.
func NewHAClient(hosts []string) *HAClient {
	return &HAClient{hosts: hosts}
}

// Statuses probes every host and returns whoever answered.
func (c *HAClient) Statuses() []sdk.NodeStatus {
	session, err := sdk.Connect(sdk.NewConnectionConfig(c.hosts...))
	if err != nil {
		return nil
	}
	defer session.Close()
	return session.ClusterStatus()
}
