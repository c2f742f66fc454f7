// chatdb - Read-only access to the Apple Messages chat database.
// Copyright (C) 2024 Ludvig Rhodin
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package chatdb reconstructs canonical message records from the macOS
// Messages chat database. All access is read-only: records are materialized
// on query and never written back.
package chatdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"go.mau.fi/util/dbutil"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lrhodin/chatdb/pkg/typedstream"
)

// DB is a handle to one chat database. The primary connection is opened once
// and reused across calls; payload sessions for rich-text decoding are opened
// per bulk fetch (see payloadSession).
type DB struct {
	db      *dbutil.Database
	path    string
	log     zerolog.Logger
	decoder RichTextDecoder
}

// Option configures a DB during Open.
type Option func(*DB)

// WithLogger attaches a logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(d *DB) {
		d.log = log
	}
}

// WithDecoder replaces the rich-text payload decoder. The default understands
// the legacy streamtyped attributedBody format.
func WithDecoder(dec RichTextDecoder) Option {
	return func(d *DB) {
		d.decoder = dec
	}
}

// DefaultPath returns the platform-standard chat database location
// (~/Library/Messages/chat.db).
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, "Library", "Messages", "chat.db"), nil
}

// Open opens the chat database at path in read-only mode. An empty path
// resolves the platform default location. A missing or unopenable database is
// an error; nothing is ever created.
func Open(path string, opts ...Option) (*DB, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open chat database: %w", err)
	}

	d := &DB{
		path:    path,
		log:     zerolog.Nop(),
		decoder: typedstream.Decoder{},
	}
	for _, opt := range opts {
		opt(d)
	}

	db, err := openDatabase(path, d.log)
	if err != nil {
		return nil, err
	}
	d.db = db
	return d, nil
}

// openDatabase opens one read-only connection pool against the chat database.
func openDatabase(path string, log zerolog.Logger) (*dbutil.Database, error) {
	uri := fmt.Sprintf("file:%s?mode=ro&_busy_timeout=5000", strings.ReplaceAll(path, " ", "%20"))
	db, err := dbutil.NewFromConfig("chatdb", dbutil.Config{
		PoolConfig: dbutil.PoolConfig{
			Type:         "sqlite3",
			URI:          uri,
			MaxOpenConns: 2,
			MaxIdleConns: 1,
		},
	}, dbutil.ZeroLogger(log))
	if err != nil {
		return nil, fmt.Errorf("failed to open chat database: %w", err)
	}
	if err = db.RawDB.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open chat database: %w", err)
	}
	return db, nil
}

// Path returns the database file path this handle reads from.
func (d *DB) Path() string {
	return d.path
}

// Close closes the primary connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// MessagesAfter returns all messages whose date is strictly greater than the
// given Unix timestamp, ordered oldest first. A limit <= 0 means no limit.
// Messages with a null or empty text column get their text recovered from the
// rich-text payload where possible.
func (d *DB) MessagesAfter(ctx context.Context, unixSeconds float64, limit int) ([]*Message, error) {
	query, args, err := messagesAfterQuery(unixSeconds, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to build message query: %w", err)
	}

	messages, err := d.queryMessages(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	sess, err := d.openPayloadSession()
	if err != nil {
		return nil, err
	}
	defer sess.Close()
	for _, msg := range messages {
		d.resolveText(ctx, sess, msg)
	}

	d.log.Debug().Float64("after", unixSeconds).Int("limit", limit).
		Int("count", len(messages)).Msg("Fetched messages")
	return messages, nil
}

// AllMessages returns every message in the store, oldest first, optionally
// limited.
func (d *DB) AllMessages(ctx context.Context, limit int) ([]*Message, error) {
	return d.MessagesAfter(ctx, 0, limit)
}

func (d *DB) queryMessages(ctx context.Context, query string, args ...any) ([]*Message, error) {
	rows, err := d.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute message query: %w", err)
	}
	defer rows.Close()

	messages := make([]*Message, 0)
	for rows.Next() {
		raw, err := scanMessageRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read message row: %w", err)
		}
		msg, err := raw.build()
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}
	return messages, nil
}

// Handle returns the handle with the given rowid, or nil when no such row
// exists.
func (d *DB) Handle(ctx context.Context, rowid int64) (*Handle, error) {
	query, args := handleByIDQuery(rowid)
	handle, err := scanHandle(d.db.QueryRow(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to fetch handle %d: %w", rowid, err)
	}
	return handle, nil
}

// AllHandles returns every handle in the store ordered by rowid.
func (d *DB) AllHandles(ctx context.Context) ([]*Handle, error) {
	query, args := allHandlesQuery()
	return d.queryHandles(ctx, query, args...)
}

// Participants returns the distinct handles in the chat the message belongs
// to. A message outside any chat yields an empty list, not an error.
func (d *DB) Participants(ctx context.Context, messageRowID int64) ([]*Handle, error) {
	query, args := participantsQuery(messageRowID)
	return d.queryHandles(ctx, query, args...)
}

func (d *DB) queryHandles(ctx context.Context, query string, args ...any) ([]*Handle, error) {
	rows, err := d.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute handle query: %w", err)
	}
	defer rows.Close()

	handles := make([]*Handle, 0)
	for rows.Next() {
		handle, err := scanHandle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read handle row: %w", err)
		}
		handles = append(handles, handle)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate handle rows: %w", err)
	}
	return handles, nil
}

// Attachments returns metadata for every attachment joined to the message.
// A message without attachments yields an empty list.
func (d *DB) Attachments(ctx context.Context, messageRowID int64) ([]*Attachment, error) {
	query, args := attachmentsQuery(messageRowID)
	rows, err := d.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute attachment query: %w", err)
	}
	defer rows.Close()

	attachments := make([]*Attachment, 0)
	for rows.Next() {
		att, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment row: %w", err)
		}
		attachments = append(attachments, att)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attachment rows: %w", err)
	}
	return attachments, nil
}

// FullMessage assembles the composite view for one message: the base record
// with resolved text, plus its sender handle, participant list, and
// attachment list. A missing message is ErrNotFound. Any follow-up lookup
// failure aborts the whole composite; only text decoding is allowed to fail
// silently.
func (d *DB) FullMessage(ctx context.Context, messageRowID int64) (*FullMessage, error) {
	query, args := messageByIDQuery(messageRowID)
	raw, err := scanMessageRow(d.db.QueryRow(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: message %d", ErrNotFound, messageRowID)
	} else if err != nil {
		return nil, fmt.Errorf("failed to fetch message %d: %w", messageRowID, err)
	}
	msg, err := raw.build()
	if err != nil {
		return nil, err
	}

	sess, err := d.openPayloadSession()
	if err != nil {
		return nil, err
	}
	defer sess.Close()
	d.resolveText(ctx, sess, msg)

	full := &FullMessage{
		Message:      *msg,
		Participants: make([]*Handle, 0),
		Attachments:  make([]*Attachment, 0),
	}

	if msg.HandleID != nil {
		full.Handle, err = d.Handle(ctx, *msg.HandleID)
		if err != nil {
			return nil, err
		}
	}
	participants, err := d.Participants(ctx, messageRowID)
	if err != nil {
		return nil, err
	}
	full.Participants = participants
	attachments, err := d.Attachments(ctx, messageRowID)
	if err != nil {
		return nil, err
	}
	full.Attachments = attachments

	return full, nil
}
