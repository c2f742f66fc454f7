package chatdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.mau.fi/util/dbutil"
)

// RichTextDecoder turns a raw attributedBody payload into plain text. The
// store calls it only when the text column came back null or empty; decode
// errors never abort a fetch.
type RichTextDecoder interface {
	Decode(payload []byte) (string, error)
}

// payloadSession is a dedicated read-only connection used to fetch
// attributedBody blobs on demand during a bulk fetch. It exists so the base
// projection never drags the large payload column along; one session is
// opened per bulk-fetch call and closed at the end of that call's scope.
type payloadSession struct {
	db *dbutil.Database
}

func (d *DB) openPayloadSession() (*payloadSession, error) {
	pdb, err := openDatabase(d.path, d.log.With().Str("db_section", "payload").Logger())
	if err != nil {
		return nil, fmt.Errorf("failed to open payload session: %w", err)
	}
	return &payloadSession{db: pdb}, nil
}

func (s *payloadSession) fetch(ctx context.Context, messageRowID int64) ([]byte, error) {
	query, args := payloadQuery(messageRowID)
	var payload []byte
	err := s.db.QueryRow(ctx, query, args...).Scan(&payload)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (s *payloadSession) Close() error {
	return s.db.Close()
}

// resolveText fills in msg.Text from the rich-text payload when the plain
// text column was null or empty. Failure at any step (payload lookup, decode)
// leaves the original value in place; text recovery is best-effort by design.
func (d *DB) resolveText(ctx context.Context, sess *payloadSession, msg *Message) {
	if msg.Text != nil && *msg.Text != "" {
		return
	}

	payload, err := sess.fetch(ctx, msg.RowID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			d.log.Debug().Err(err).Int64("rowid", msg.RowID).
				Msg("Failed to fetch rich text payload")
		}
		return
	}
	if len(payload) == 0 {
		return
	}

	text, err := d.decoder.Decode(payload)
	if err != nil {
		d.log.Debug().Err(err).Int64("rowid", msg.RowID).
			Msg("Failed to decode rich text payload")
		return
	}
	msg.Text = &text
}
