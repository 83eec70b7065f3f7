// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package audit

import (
	"context"
	"encoding/json"
	"testing"
)

func openTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := Open(InMemoryConfig())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBadgerStore_AppendAndList(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, rec := range []Record{
		{SessionID: "s1", Kind: KindSession, Summary: "session started"},
		{SessionID: "s1", Kind: KindToolDispatch, Tool: "write_file", Summary: "write_file implementation.py", Verdict: "ok"},
		{SessionID: "s2", Kind: KindSession, Summary: "other session"},
		{SessionID: "s1", Kind: KindApproval, Summary: "run_command approved", Verdict: "approved"},
	} {
		if err := store.Append(ctx, rec); err != nil {
			t.Fatalf("Append(%s) error: %v", rec.Summary, err)
		}
	}

	records, err := store.List(ctx, "s1")
	if err != nil {
		t.Fatalf("List(s1) error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("List(s1) returned %d records, want 3", len(records))
	}
	for i, rec := range records {
		if rec.Seq != uint64(i+1) {
			t.Errorf("records[%d].Seq = %d, want %d", i, rec.Seq, i+1)
		}
		if rec.At.IsZero() {
			t.Errorf("records[%d].At is zero, want stamped", i)
		}
	}
	if records[1].Tool != "write_file" || records[1].Verdict != "ok" {
		t.Errorf("records[1] = %+v, want the write_file dispatch", records[1])
	}

	other, err := store.List(ctx, "s2")
	if err != nil {
		t.Fatalf("List(s2) error: %v", err)
	}
	if len(other) != 1 || other[0].Seq != 1 {
		t.Errorf("List(s2) = %+v, want one record with its own sequence", other)
	}
}

func TestBadgerStore_DetailRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	detail, err := json.Marshal(map[string]any{"turns": 4, "generation": 2})
	if err != nil {
		t.Fatal(err)
	}
	rec := Record{
		SessionID: "s1",
		Kind:      KindGeneration,
		Summary:   "generation 2 retired",
		Detail:    detail,
	}
	if err := store.Append(ctx, rec); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	records, err := store.List(ctx, "s1")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(records[0].Detail, &got); err != nil {
		t.Fatalf("Detail did not round trip: %v", err)
	}
	if got["generation"] != float64(2) {
		t.Errorf("Detail generation = %v, want 2", got["generation"])
	}
}

func TestBadgerStore_SequenceSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := Open(DefaultConfig(dir))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := store.Append(ctx, Record{SessionID: "s1", Kind: KindSession, Summary: "event"}); err != nil {
			t.Fatalf("Append() error: %v", err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	reopened, err := Open(DefaultConfig(dir))
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer reopened.Close()

	if err := reopened.Append(ctx, Record{SessionID: "s1", Kind: KindSession, Summary: "after reopen"}); err != nil {
		t.Fatalf("Append() after reopen error: %v", err)
	}

	records, err := reopened.List(ctx, "s1")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("List() returned %d records, want 3", len(records))
	}
	if records[2].Seq != 3 {
		t.Errorf("records[2].Seq = %d, want 3 (sequence continues across reopen)", records[2].Seq)
	}
}

func TestBadgerStore_AppendRequiresSession(t *testing.T) {
	store := openTestStore(t)

	if err := store.Append(context.Background(), Record{Summary: "no session"}); err == nil {
		t.Error("Append() error = nil, want session id validation error")
	}
}

func TestBadgerStore_ListUnknownSession(t *testing.T) {
	store := openTestStore(t)

	records, err := store.List(context.Background(), "missing")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("List(missing) = %+v, want none", records)
	}
}

func TestBadgerStore_Sessions(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, sessionID := range []string{"s2", "s1", "s2", "s3"} {
		if err := store.Append(ctx, Record{SessionID: sessionID, Kind: KindSession, Summary: "event"}); err != nil {
			t.Fatalf("Append(%s) error: %v", sessionID, err)
		}
	}

	ids, err := store.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions() error: %v", err)
	}
	want := []string{"s1", "s2", "s3"}
	if len(ids) != len(want) {
		t.Fatalf("Sessions() = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("Sessions()[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestBadgerStore_SessionsEmpty(t *testing.T) {
	store := openTestStore(t)

	ids, err := store.Sessions(context.Background())
	if err != nil {
		t.Fatalf("Sessions() error: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("Sessions() = %v, want none", ids)
	}
}

func TestOpen_ReadOnly(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := Open(DefaultConfig(dir))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if err := store.Append(ctx, Record{SessionID: "s1", Kind: KindSession, Summary: "event"}); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	inspector, err := Open(Config{Dir: dir, ReadOnly: true})
	if err != nil {
		t.Fatalf("read-only Open() error: %v", err)
	}
	defer inspector.Close()

	records, err := inspector.List(ctx, "s1")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("List() returned %d records, want 1", len(records))
	}
	if err := inspector.Append(ctx, Record{SessionID: "s1", Summary: "write"}); err == nil {
		t.Error("Append() on read-only store succeeded, want error")
	}
}

func TestOpen_RequiresDir(t *testing.T) {
	if _, err := Open(Config{}); err == nil {
		t.Error("Open() error = nil, want dir validation error")
	}
}

func TestNopStore(t *testing.T) {
	var store Store = NopStore{}

	if err := store.Append(context.Background(), Record{SessionID: "s1"}); err != nil {
		t.Errorf("NopStore.Append() error: %v", err)
	}
	records, err := store.List(context.Background(), "s1")
	if err != nil || records != nil {
		t.Errorf("NopStore.List() = %v, %v, want nil, nil", records, err)
	}
}
