/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package storage

import (
	"os"
	"testing"
)

// setupTestEngine creates a disk-backed test engine and returns a
// cleanup function. This is used by tests that need durable storage.
func setupTestEngine(t *testing.T) (StorageEngine, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "flyraft-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	engine, err := NewStorageEngine(StorageConfig{DataDir: tmpDir, Type: EngineTypeDisk})
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create storage engine: %v", err)
	}

	cleanup := func() {
		engine.Close()
		os.RemoveAll(tmpDir)
	}

	return engine, cleanup
}

// setupTestEngineWithPath creates a disk-backed test engine at a
// temporary path. Returns the engine, path, and cleanup function; the
// path lets a test reopen the same data to exercise WAL replay.
func setupTestEngineWithPath(t *testing.T) (StorageEngine, string, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "flyraft-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	engine, err := NewStorageEngine(StorageConfig{DataDir: tmpDir, Type: EngineTypeDisk})
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create storage engine: %v", err)
	}

	cleanup := func() {
		os.RemoveAll(tmpDir)
	}

	return engine, tmpDir, cleanup
}
