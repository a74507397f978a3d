// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"database/sql"
	"time"

	"github.com/coheara/engine/pkg/cherr"
)

// ConversationRepo provides CRUD over conversations (spec §6 /chat/*).
type ConversationRepo struct{ db *DB }

func NewConversationRepo(db *DB) *ConversationRepo { return &ConversationRepo{db: db} }

func (r *ConversationRepo) Create(c Conversation) error {
	_, err := r.db.Exec(
		`INSERT INTO conversations (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.Title, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return cherr.Wrap(cherr.Database, "insert conversation", err)
	}
	return nil
}

func (r *ConversationRepo) Get(id string) (*Conversation, error) {
	var c Conversation
	err := r.db.Get(&c, `SELECT * FROM conversations WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, cherr.New(cherr.NotFound, "conversation not found")
	}
	if err != nil {
		return nil, cherr.Wrap(cherr.Database, "get conversation", err)
	}
	return &c, nil
}

// Touch bumps updated_at, called whenever a new message is appended.
func (r *ConversationRepo) Touch(id string, at time.Time) error {
	_, err := r.db.Exec(`UPDATE conversations SET updated_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return cherr.Wrap(cherr.Database, "touch conversation", err)
	}
	return nil
}

// List returns every conversation, most recently updated first.
func (r *ConversationRepo) List() ([]Conversation, error) {
	var rows []Conversation
	if err := r.db.Select(&rows, `SELECT * FROM conversations ORDER BY updated_at DESC`); err != nil {
		return nil, cherr.Wrap(cherr.Database, "list conversations", err)
	}
	return rows, nil
}

// ChatMessageRepo provides CRUD over chat_messages.
type ChatMessageRepo struct{ db *DB }

func NewChatMessageRepo(db *DB) *ChatMessageRepo { return &ChatMessageRepo{db: db} }

func (r *ChatMessageRepo) Create(m ChatMessage) error {
	_, err := r.db.Exec(
		`INSERT INTO chat_messages (id, conversation_id, sender, body, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.Sender, m.Body, m.CreatedAt,
	)
	if err != nil {
		return cherr.Wrap(cherr.Database, "insert chat message", err)
	}
	return nil
}

// ListByConversation returns every message in a conversation, oldest first.
func (r *ChatMessageRepo) ListByConversation(conversationID string) ([]ChatMessage, error) {
	var rows []ChatMessage
	err := r.db.Select(&rows, `SELECT * FROM chat_messages WHERE conversation_id = ? ORDER BY created_at ASC`, conversationID)
	if err != nil {
		return nil, cherr.Wrap(cherr.Database, "list chat messages", err)
	}
	return rows, nil
}
