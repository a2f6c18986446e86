// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"sync"
)

// InMemory keeps sessions in process memory. Turns are lost when the
// process exits.
type InMemory struct {
	mu       sync.RWMutex
	sessions map[string][]Turn
}

// NewInMemory creates an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{sessions: make(map[string][]Turn)}
}

// Append adds turn to the session.
func (m *InMemory) Append(ctx context.Context, sessionID string, turn Turn) error {
	turn, err := prepare(sessionID, turn)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return storeError("append", sessionID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = append(m.sessions[sessionID], turn)
	return nil
}

// Load returns a copy of the session's turns.
func (m *InMemory) Load(ctx context.Context, sessionID string) ([]Turn, error) {
	if err := validateID(sessionID); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	turns := m.sessions[sessionID]
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out, nil
}

// Sessions returns the number of sessions held.
func (m *InMemory) Sessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
