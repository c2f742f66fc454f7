// chatdb - Read-only access to the Apple Messages chat database.
// Copyright (C) 2024 Ludvig Rhodin
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package chatdb

import (
	"database/sql"
	"fmt"
)

// defaultService is substituted when the message row carries no service name.
const defaultService = "iMessage"

// Message is one reconstructed row from the message table. Timestamps are
// Unix seconds; DateRead and DateDelivered are nil when the underlying
// internal value is the sentinel zero ("event never happened").
type Message struct {
	RowID    int64   `json:"rowid"`
	GUID     string  `json:"guid"`
	Text     *string `json:"text"`
	Service  string  `json:"service"`
	HandleID *int64  `json:"handle_id"`
	Subject  *string `json:"subject"`

	Date          float64  `json:"date"`
	DateRead      *float64 `json:"date_read"`
	DateDelivered *float64 `json:"date_delivered"`

	IsFromMe bool `json:"is_from_me"`
	IsRead   bool `json:"is_read"`
	// IsSent is true for every row this layer returns: messages present in
	// the store are sent by construction.
	IsSent bool `json:"is_sent"`
	// IsDelivered is derived from the raw date_delivered value, not read
	// from a column of its own.
	IsDelivered bool `json:"is_delivered"`

	// CacheRoomnames carries the thread originator GUID, mirroring the row
	// shape produced by the historical reader.
	CacheRoomnames        *string `json:"cache_roomnames"`
	GroupTitle            *string `json:"group_title"`
	AssociatedMessageGUID *string `json:"associated_message_guid"`
	AssociatedMessageType *int64  `json:"associated_message_type"`
	ThreadOriginatorGUID  *string `json:"thread_originator_guid"`

	ChatID         *int64 `json:"chat_id"`
	NumAttachments int64  `json:"num_attachments"`
	// DeletedFrom is always nil: this layer does no deletion tracking.
	DeletedFrom *int64 `json:"deleted_from"`
	// NumReplies is always zero: reply counting happens above this layer.
	NumReplies int64 `json:"num_replies"`
}

// Handle is a contact identity (phone number or email) from the handle table.
type Handle struct {
	RowID             int64   `json:"rowid"`
	ID                string  `json:"id"`
	Service           *string `json:"service"`
	UncanonicalizedID *string `json:"uncanonicalized_id"`
}

// Attachment is attachment metadata only; file contents are never read here.
type Attachment struct {
	RowID        int64   `json:"rowid"`
	GUID         string  `json:"guid"`
	Filename     *string `json:"filename"`
	MimeType     *string `json:"mime_type"`
	TransferName *string `json:"transfer_name"`
	TotalBytes   *int64  `json:"total_bytes"`
}

// FullMessage is the composite view for single-message detail requests:
// the message merged with its sender handle, the chat's participant set, and
// its attachments. Participants and Attachments are always non-nil.
type FullMessage struct {
	Message
	Handle       *Handle       `json:"handle"`
	Participants []*Handle     `json:"participants"`
	Attachments  []*Attachment `json:"attachments"`
}

// messageRow holds one raw row of the shared message projection before
// mapping. Every nullable column scans into a sql.Null* so absence survives
// until the mapping stage decides what it means.
type messageRow struct {
	RowID                 sql.NullInt64
	GUID                  sql.NullString
	Text                  sql.NullString
	Service               sql.NullString
	HandleID              sql.NullInt64
	Subject               sql.NullString
	Date                  sql.NullInt64
	DateRead              sql.NullInt64
	DateDelivered         sql.NullInt64
	IsFromMe              sql.NullBool
	IsRead                sql.NullBool
	GroupTitle            sql.NullString
	AssociatedMessageGUID sql.NullString
	AssociatedMessageType sql.NullInt64
	ThreadOriginatorGUID  sql.NullString
	ChatID                sql.NullInt64
	NumAttachments        sql.NullInt64
	DeletedFrom           sql.NullInt64
	NumReplies            sql.NullInt64
}

// scanner is satisfied by both *sql.Row and dbutil rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanMessageRow(row scanner) (*messageRow, error) {
	var r messageRow
	err := row.Scan(
		&r.RowID,
		&r.GUID,
		&r.Text,
		&r.Service,
		&r.HandleID,
		&r.Subject,
		&r.Date,
		&r.DateRead,
		&r.DateDelivered,
		&r.IsFromMe,
		&r.IsRead,
		&r.GroupTitle,
		&r.AssociatedMessageGUID,
		&r.AssociatedMessageType,
		&r.ThreadOriginatorGUID,
		&r.ChatID,
		&r.NumAttachments,
		&r.DeletedFrom,
		&r.NumReplies,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// build maps the raw row into a Message in two stages: a direct copy of the
// stored columns, then the derived fields (service default, sentinel-zero
// timestamps, delivery/sent flags). Text resolution is a separate stage; see
// resolveText.
func (r *messageRow) build() (*Message, error) {
	if !r.RowID.Valid || !r.GUID.Valid || r.GUID.String == "" {
		return nil, fmt.Errorf("%w: message row is missing rowid or guid", ErrBadRow)
	}

	msg := &Message{
		RowID:                 r.RowID.Int64,
		GUID:                  r.GUID.String,
		Text:                  nullString(r.Text),
		HandleID:              nullInt(r.HandleID),
		Subject:               nullString(r.Subject),
		IsFromMe:              r.IsFromMe.Valid && r.IsFromMe.Bool,
		IsRead:                r.IsRead.Valid && r.IsRead.Bool,
		GroupTitle:            nullString(r.GroupTitle),
		AssociatedMessageGUID: nullString(r.AssociatedMessageGUID),
		AssociatedMessageType: nullInt(r.AssociatedMessageType),
		ThreadOriginatorGUID:  nullString(r.ThreadOriginatorGUID),
		ChatID:                nullInt(r.ChatID),
		NumAttachments:        r.NumAttachments.Int64,
		DeletedFrom:           nil,
		NumReplies:            0,
	}

	msg.Service = defaultService
	if r.Service.Valid && r.Service.String != "" {
		msg.Service = r.Service.String
	}
	msg.Date = UnixTime(r.Date.Int64)
	msg.DateRead = unixTimeOrNil(r.DateRead.Int64)
	msg.DateDelivered = unixTimeOrNil(r.DateDelivered.Int64)
	msg.IsSent = true
	msg.IsDelivered = r.DateDelivered.Int64 != 0
	msg.CacheRoomnames = nullString(r.ThreadOriginatorGUID)

	return msg, nil
}

func scanHandle(row scanner) (*Handle, error) {
	var (
		rowid             int64
		id                string
		service           sql.NullString
		uncanonicalizedID sql.NullString
	)
	if err := row.Scan(&rowid, &id, &service, &uncanonicalizedID); err != nil {
		return nil, err
	}
	return &Handle{
		RowID:             rowid,
		ID:                id,
		Service:           nullString(service),
		UncanonicalizedID: nullString(uncanonicalizedID),
	}, nil
}

func scanAttachment(row scanner) (*Attachment, error) {
	var (
		rowid        int64
		guid         string
		filename     sql.NullString
		mimeType     sql.NullString
		transferName sql.NullString
		totalBytes   sql.NullInt64
	)
	if err := row.Scan(&rowid, &guid, &filename, &mimeType, &transferName, &totalBytes); err != nil {
		return nil, err
	}
	return &Attachment{
		RowID:        rowid,
		GUID:         guid,
		Filename:     nullString(filename),
		MimeType:     nullString(mimeType),
		TransferName: nullString(transferName),
		TotalBytes:   nullInt(totalBytes),
	}, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
