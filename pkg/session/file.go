// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// File stores each session as a JSON-lines log under a base directory.
// One line is one turn; lines are only ever appended.
type File struct {
	mu      sync.Mutex
	baseDir string
}

// NewFile creates a file-backed store rooted at baseDir.
func NewFile(baseDir string) (*File, error) {
	if baseDir == "" {
		baseDir = "sessions"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, storeError("create directory", "", err)
	}
	return &File{baseDir: baseDir}, nil
}

func (f *File) sessionFile(sessionID string) string {
	return filepath.Join(f.baseDir, sessionID+".jsonl")
}

// Append writes turn as one line and syncs it to disk.
func (f *File) Append(ctx context.Context, sessionID string, turn Turn) error {
	turn, err := prepare(sessionID, turn)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return storeError("append", sessionID, err)
	}

	line, err := json.Marshal(turn)
	if err != nil {
		return storeError("encode turn", sessionID, err)
	}
	line = append(line, '\n')

	f.mu.Lock()
	defer f.mu.Unlock()

	fh, err := os.OpenFile(f.sessionFile(sessionID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return storeError("open session file", sessionID, err)
	}
	if _, err := fh.Write(line); err != nil {
		fh.Close()
		return storeError("write turn", sessionID, err)
	}
	if err := fh.Sync(); err != nil {
		fh.Close()
		return storeError("sync session file", sessionID, err)
	}
	if err := fh.Close(); err != nil {
		return storeError("close session file", sessionID, err)
	}
	return nil
}

// Load reads every turn of the session in append order. A session with no
// file is empty.
func (f *File) Load(ctx context.Context, sessionID string) ([]Turn, error) {
	if err := validateID(sessionID); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	fh, err := os.Open(f.sessionFile(sessionID))
	if os.IsNotExist(err) {
		return []Turn{}, nil
	}
	if err != nil {
		return nil, storeError("open session file", sessionID, err)
	}
	defer fh.Close()

	turns := make([]Turn, 0)
	scanner := bufio.NewScanner(fh)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var t Turn
		if err := json.Unmarshal(scanner.Bytes(), &t); err != nil {
			return nil, storeError(fmt.Sprintf("decode line %d", lineNo), sessionID, err)
		}
		turns = append(turns, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, storeError("read session file", sessionID, err)
	}
	return turns, nil
}
