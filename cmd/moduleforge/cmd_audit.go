// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/moduleforge/audit"
	"github.com/AleutianAI/moduleforge/cmd/moduleforge/config"
	"github.com/AleutianAI/moduleforge/pkg/ux"
)

// runAuditCommand implements the audit subcommand.
func runAuditCommand(cmd *cobra.Command, args []string) {
	os.Exit(runAudit(args))
}

// runAudit opens the audit store read-only and prints either the
// session index or one session's trail.
func runAudit(args []string) int {
	cfg, err := resolveConfig()
	if err != nil {
		ux.Error("Invalid configuration: " + err.Error())
		return exitConfig
	}

	dir := config.ExpandHome(cfg.Audit.Dir)
	if dir == "" {
		ux.Error("No audit directory configured")
		return exitConfig
	}

	store, err := audit.Open(audit.Config{Dir: dir, ReadOnly: true})
	if err != nil {
		ux.Error("Cannot open audit store: " + err.Error())
		return exitConfig
	}
	defer store.Close()

	ctx := context.Background()
	if len(args) == 0 {
		return printAuditSessions(ctx, store)
	}
	return printAuditTrail(ctx, store, args[0])
}

// printAuditSessions lists the session ids present in the store, one
// per line so the output pipes into a second audit invocation.
func printAuditSessions(ctx context.Context, store *audit.BadgerStore) int {
	ids, err := store.Sessions(ctx)
	if err != nil {
		ux.Error(err.Error())
		return exitFailed
	}
	if len(ids) == 0 {
		ux.Info("audit trail is empty")
		return exitCompleted
	}

	ux.Title("Recorded sessions")
	for _, id := range ids {
		fmt.Println(id)
	}
	return exitCompleted
}

// printAuditTrail prints every record of one session in insertion
// order.
func printAuditTrail(ctx context.Context, store *audit.BadgerStore, sessionID string) int {
	records, err := store.List(ctx, sessionID)
	if err != nil {
		ux.Error(err.Error())
		return exitFailed
	}
	if len(records) == 0 {
		ux.Warning("no records for session " + sessionID)
		return exitFailed
	}

	ux.Title("Session " + sessionID)
	for _, rec := range records {
		fmt.Println(formatAuditRecord(rec))
	}
	ux.Muted(fmt.Sprintf("%d records", len(records)))
	return exitCompleted
}

// formatAuditRecord renders one record as a single aligned line.
func formatAuditRecord(rec audit.Record) string {
	line := fmt.Sprintf("%s  %-20s %-10s %s",
		rec.At.Local().Format("2006-01-02 15:04:05"),
		rec.Kind,
		rec.Verdict,
		rec.Summary,
	)
	if rec.Duration > 0 {
		line += fmt.Sprintf(" (%s)", rec.Duration.Round(time.Millisecond))
	}
	return line
}
