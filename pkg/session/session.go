// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package session stores conversation history as an append-only log of turns
// keyed by session identifier.
package session

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jllopis/skycast/pkg/errors"
	"github.com/jllopis/skycast/pkg/llm"
)

// Turn is one message in a conversation.
type Turn struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      llm.Role  `json:"role"`
	Content   string    `json:"content"`
	Agent     string    `json:"agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is an append-only conversation log.
//
// Implementations must be safe for concurrent use across sessions. Load
// returns turns in append order; turns are never modified once appended.
type Store interface {
	Append(ctx context.Context, sessionID string, turn Turn) error
	Load(ctx context.Context, sessionID string) ([]Turn, error)
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Open creates the store for backend. path is a directory for the file
// backend and a database file (or ":memory:") for sqlite.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", BackendMemory:
		return NewInMemory(), nil
	case BackendFile:
		return NewFile(path)
	case BackendSQLite:
		return NewSQLite(path)
	default:
		return nil, errors.New(errors.CodeConfiguration, fmt.Sprintf("unknown session backend %q", backend), nil)
	}
}

// Close releases resources held by s, if any.
func Close(s Store) error {
	if c, ok := s.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// Messages converts turns into completion history.
func Messages(turns []Turn) []llm.Message {
	msgs := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, llm.Message{Role: t.Role, Content: t.Content})
	}
	return msgs
}

// WindowStrategy bounds the history fed to the model to the most recent
// turns. The stored log is not affected.
type WindowStrategy struct {
	// MaxTurns is the number of turns kept. Zero or less keeps everything.
	MaxTurns int
}

// Apply returns the tail of turns allowed by the window.
func (w WindowStrategy) Apply(turns []Turn) []Turn {
	if w.MaxTurns <= 0 || len(turns) <= w.MaxTurns {
		return turns
	}
	return turns[len(turns)-w.MaxTurns:]
}

func prepare(sessionID string, turn Turn) (Turn, error) {
	if err := validateID(sessionID); err != nil {
		return Turn{}, err
	}
	if turn.Role == "" {
		return Turn{}, errors.New(errors.CodeInvalidInput, "turn role is required", nil)
	}
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	turn.SessionID = sessionID
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	return turn, nil
}

func validateID(sessionID string) error {
	if sessionID == "" {
		return errors.New(errors.CodeInvalidInput, "session id is required", nil)
	}
	if sessionID == "." || sessionID == ".." || filepath.Base(sessionID) != sessionID {
		return errors.New(errors.CodeInvalidInput, "session id must not contain path elements", nil).
			WithContext("session_id", sessionID)
	}
	return nil
}

func storeError(op, sessionID string, err error) *errors.SkycastError {
	return errors.New(errors.CodeSessionStore, op+" failed", err).
		WithContext("session_id", sessionID).
		WithRecoverable(true)
}
