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
flyraftctl - FlyRaft Admin Console

An interactive console (and one-shot command runner) against a running
cluster: inspect status, watch the commit watermark, propose entries,
and pull the audit trail.

Usage:
    flyraftctl --addrs 10.0.0.1:9998,10.0.0.2:9998            # REPL
    flyraftctl --addrs 10.0.0.1:9998 status                   # one-shot
    flyraftctl --addrs 10.0.0.1:9998 propose '{"op":"put"}'
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"flyraft/internal/sdk"
	"flyraft/pkg/cli"
)

const version = "1.0.0"

var consoleCommands = []string{
	"status", "leader", "propose", "watch", "audit", "help", "exit", "quit",
}

func main() {
	addrs := flag.String("addrs", "127.0.0.1:9998", "Comma-separated node addresses")
	auditAddr := flag.String("audit-addr", "", "Audit query endpoint (host:port)")
	flag.Parse()

	session, err := sdk.Connect(sdk.NewConnectionConfig(strings.Split(*addrs, ",")...))
	if err != nil {
		cli.NewCLIError("Failed to connect to the FlyRaft node").
			WithDetail(err.Error()).
			WithSuggestion("Check --addrs and that flyraftd is running").
			Exit()
	}
	defer session.Close()

	c := &console{session: session, auditAddr: *auditAddr}

	// One-shot mode: a command on the command line runs and exits.
	if args := flag.Args(); len(args) > 0 {
		if err := c.run(args[0], args[1:]); err != nil {
			cli.PrintError("%s", err.Error())
			os.Exit(1)
		}
		return
	}

	c.repl()
}

type console struct {
	session   *sdk.Session
	auditAddr string
}

func (c *console) repl() {
	fmt.Printf("flyraftctl v%s -- type 'help' for commands\n", version)

	histFile := filepath.Join(os.TempDir(), ".flyraftctl_history")
	editor, err := cli.NewLineEditor("flyraft> ", histFile, consoleCommands...)
	if err != nil {
		cli.PrintError("cannot start line editor: %s", err.Error())
		os.Exit(1)
	}
	defer editor.Close()

	for {
		line, ok := editor.ReadLine()
		if !ok {
			return
		}
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		cmd, args := fields[0], fields[1:]
		if cmd == "exit" || cmd == "quit" {
			return
		}
		if err := c.run(cmd, args); err != nil {
			cli.PrintError("%s", err.Error())
		}
	}
}

func (c *console) run(cmd string, args []string) error {
	switch cmd {
	case "status":
		return c.status()
	case "leader":
		return c.leader()
	case "propose":
		if len(args) == 0 {
			return fmt.Errorf("usage: propose <payload>")
		}
		return c.propose(strings.Join(args, " "))
	case "watch":
		return c.watch()
	case "audit":
		return c.audit(args)
	case "help":
		c.help()
		return nil
	default:
		return fmt.Errorf("unknown command %q (try 'help')", cmd)
	}
}

func (c *console) status() error {
	statuses := c.session.ClusterStatus()
	if len(statuses) == 0 {
		return fmt.Errorf("no node answered")
	}
	printResultSet(sdk.StatusResultSet(statuses))
	return nil
}

func (c *console) leader() error {
	leader, err := c.session.Leader()
	if err != nil {
		return err
	}
	fmt.Printf("%s node %d at %s (term %d)\n",
		cli.Success("leader:"), leader.NodeID, leader.Addr, leader.Term)
	return nil
}

func (c *console) propose(payload string) error {
	result, err := c.session.Propose([]byte(payload))
	if err != nil {
		return err
	}
	fmt.Printf("%s log id %s in %s\n",
		cli.Success("accepted:"), result.LogID, result.Duration.Round(time.Millisecond))

	cursor := sdk.NewCommitCursor(c.session)
	if err := cursor.WaitFor(result.LogID, 5*time.Second); err != nil {
		cli.PrintWarning("accepted but not yet observed committed: %s", err.Error())
		return nil
	}
	fmt.Printf("%s committed\n", cli.Success("ok:"))
	return nil
}

func (c *console) watch() error {
	cursor := sdk.NewCommitCursor(c.session)
	fmt.Println("watching commit watermark (ctrl-c to stop)...")
	var last string
	for i := 0; i < 100; i++ {
		seen, err := cursor.Refresh()
		if err != nil {
			return err
		}
		if s := seen.String(); s != last {
			fmt.Printf("  committed: %s\n", s)
			last = s
		}
		time.Sleep(500 * time.Millisecond)
	}
	return nil
}

func (c *console) audit(args []string) error {
	if c.auditAddr == "" {
		return fmt.Errorf("audit queries need --audit-addr")
	}
	client := sdk.NewAuditClient(c.auditAddr)

	kind := "recent"
	if len(args) > 0 {
		kind = args[0]
	}

	switch kind {
	case "recent":
		evs, err := client.GetRecentEvents(50)
		if err != nil {
			return err
		}
		printResultSet(sdk.AuditResultSet(evs))
		return nil
	case "elections":
		evs, err := client.GetElectionHistory(50)
		if err != nil {
			return err
		}
		printResultSet(sdk.AuditResultSet(evs))
		return nil
	case "failed":
		evs, err := client.GetFailedEvents(50)
		if err != nil {
			return err
		}
		printResultSet(sdk.AuditResultSet(evs))
		return nil
	default:
		return fmt.Errorf("usage: audit [recent|elections|failed]")
	}
}

func (c *console) help() {
	fmt.Println()
	fmt.Println("  status                 cluster-wide node status")
	fmt.Println("  leader                 current leader, if any")
	fmt.Println("  propose <payload>      append one entry and wait for commit")
	fmt.Println("  watch                  follow the commit watermark")
	fmt.Println("  audit [recent|elections|failed]")
	fmt.Println("                         query the audit trail (needs --audit-addr)")
	fmt.Println("  exit                   leave the console")
	fmt.Println()
}

func printResultSet(rs *sdk.ResultSet) {
	table := cli.NewTable(rs.Columns...)
	for _, row := range rs.Rows {
		table.AddRow(row...)
	}
	table.Print()
}
