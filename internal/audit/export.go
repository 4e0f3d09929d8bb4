/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
)

// exportJSON exports audit logs to JSON format.
func (m *Manager) exportJSON(filename string, events []Event) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(events); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	m.logger.Info("exported audit logs to JSON", "filename", filename, "count", fmt.Sprint(len(events)))
	return nil
}

// exportCSV exports audit logs to CSV format.
func (m *Manager) exportCSV(filename string, events []Event) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"ID", "Timestamp", "EventType", "NodeID", "Term",
		"PeerID", "LogID", "Operation", "ClientAddr",
		"Status", "ErrorMessage", "DurationMs", "Metadata",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, event := range events {
		metadata := ""
		if len(event.Metadata) > 0 {
			metaJSON, _ := json.Marshal(event.Metadata)
			metadata = string(metaJSON)
		}

		row := []string{
			strconv.FormatInt(event.ID, 10),
			event.Timestamp.Format("2006-01-02 15:04:05"),
			string(event.EventType),
			event.NodeID,
			strconv.FormatUint(event.Term, 10),
			event.PeerID,
			event.LogID,
			event.Operation,
			event.ClientAddr,
			string(event.Status),
			event.ErrorMessage,
			strconv.FormatInt(event.DurationMs, 10),
			metadata,
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	m.logger.Info("exported audit logs to CSV", "filename", filename, "count", fmt.Sprint(len(events)))
	return nil
}

// exportText exports audit logs as an aligned, human-readable table,
// the shape an operator pastes into an incident report.
func (m *Manager) exportText(filename string, events []Event) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	w := tabwriter.NewWriter(file, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tEVENT\tNODE\tTERM\tPEER\tLOG ID\tSTATUS\tDETAIL")
	for _, event := range events {
		detail := event.Operation
		if event.ErrorMessage != "" {
			detail = event.ErrorMessage
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			event.Timestamp.Format("2006-01-02 15:04:05"),
			event.EventType,
			event.NodeID,
			event.Term,
			event.PeerID,
			event.LogID,
			event.Status,
			detail,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	m.logger.Info("exported audit logs to text", "filename", filename, "count", fmt.Sprint(len(events)))
	return nil
}
