package chatdb

import (
	"fmt"
	"math"
)

// messageColumns is the shared projection for every message query. Beyond the
// raw message columns it carries the left-joined chat id, a computed
// attachment count, and two placeholder columns kept for consumers of the
// historical row shape: deleted_from (no deletion tracking at this layer) and
// num_replies (not computed at this layer).
const messageColumns = `
	m.ROWID, m.guid, m.text, m.service, m.handle_id, m.subject,
	m.date, m.date_read, m.date_delivered, m.is_from_me, m.is_read,
	m.group_title, m.associated_message_guid, m.associated_message_type,
	m.thread_originator_guid,
	c.chat_id,
	(SELECT COUNT(*) FROM message_attachment_join a WHERE m.ROWID = a.message_id) AS num_attachments,
	NULL AS deleted_from,
	0 AS num_replies`

const handleColumns = `h.ROWID, h.id, h.service, h.uncanonicalized_id`

// messagesAfterQuery selects messages with an internal timestamp strictly
// greater than the cursor, oldest first. A limit <= 0 means no limit. The
// cursor and limit are always passed as bind parameters, never interpolated.
func messagesAfterQuery(cursorUnixSeconds float64, limit int) (string, []any, error) {
	if math.IsNaN(cursorUnixSeconds) || math.IsInf(cursorUnixSeconds, 0) {
		return "", nil, fmt.Errorf("invalid cursor timestamp %v", cursorUnixSeconds)
	}
	if cursorUnixSeconds < 0 {
		return "", nil, fmt.Errorf("cursor timestamp must be non-negative, got %v", cursorUnixSeconds)
	}

	query := `SELECT` + messageColumns + `
		FROM message m
		LEFT JOIN chat_message_join c ON m.ROWID = c.message_id
		WHERE m.date > $1
		ORDER BY m.date ASC`
	args := []any{AppleTime(cursorUnixSeconds)}
	if limit > 0 {
		query += `
		LIMIT $2`
		args = append(args, limit)
	}
	return query, args, nil
}

// messageByIDQuery selects a single message by rowid with the same projection
// as messagesAfterQuery. At most one row is expected.
func messageByIDQuery(rowid int64) (string, []any) {
	query := `SELECT` + messageColumns + `
		FROM message m
		LEFT JOIN chat_message_join c ON m.ROWID = c.message_id
		WHERE m.ROWID = $1`
	return query, []any{rowid}
}

func handleByIDQuery(rowid int64) (string, []any) {
	return `SELECT ` + handleColumns + ` FROM handle h WHERE h.ROWID = $1`, []any{rowid}
}

func allHandlesQuery() (string, []any) {
	return `SELECT ` + handleColumns + ` FROM handle h ORDER BY h.ROWID`, nil
}

// participantsQuery selects the distinct handles reachable through the
// message's chat, via the chat-handle and chat-message join tables.
func participantsQuery(messageRowID int64) (string, []any) {
	query := `SELECT DISTINCT ` + handleColumns + `
		FROM handle h
		INNER JOIN chat_handle_join chj ON h.ROWID = chj.handle_id
		INNER JOIN chat_message_join cmj ON chj.chat_id = cmj.chat_id
		WHERE cmj.message_id = $1`
	return query, []any{messageRowID}
}

func attachmentsQuery(messageRowID int64) (string, []any) {
	query := `SELECT a.ROWID, a.guid, a.filename, a.mime_type, a.transfer_name, a.total_bytes
		FROM attachment a
		INNER JOIN message_attachment_join maj ON a.ROWID = maj.attachment_id
		WHERE maj.message_id = $1`
	return query, []any{messageRowID}
}

// payloadQuery fetches the raw rich-text payload for one message. It is kept
// out of the base projection because attributedBody is a large blob most
// fetches never need.
func payloadQuery(messageRowID int64) (string, []any) {
	return `SELECT attributedBody FROM message WHERE ROWID = $1`, []any{messageRowID}
}
