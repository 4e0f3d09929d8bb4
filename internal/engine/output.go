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

// Output is an ordered command queue plus a running metrics-changed
// bitset, drained by the runtime after every call into the engine. The
// runtime MUST execute commands in the order they appear here: later
// commands can depend on the durability of earlier ones (a SaveVote must
// land before any command whose effect is observable to a peer).
type Output struct {
	commands       []Command
	metricsChanged MetricsChanged
}

// Push appends a command and unions its metrics effect into the output.
func (o *Output) Push(cmd Command) {
	o.commands = append(o.commands, cmd)
	o.metricsChanged |= cmd.Metrics
}

// Commands returns the queued commands in push order.
func (o *Output) Commands() []Command {
	return o.commands
}

// MetricsChanged returns the union of metrics-changed bits across every
// command pushed since the last Drain.
func (o *Output) MetricsChanged() MetricsChanged {
	return o.metricsChanged
}

// Drain empties the queue and returns what was in it, for the runtime to
// execute. Resets the metrics-changed bitset.
func (o *Output) Drain() ([]Command, MetricsChanged) {
	cmds := o.commands
	metrics := o.metricsChanged
	o.commands = nil
	o.metricsChanged = 0
	return cmds, metrics
}

// Len reports how many commands are currently queued.
func (o *Output) Len() int {
	return len(o.commands)
}
