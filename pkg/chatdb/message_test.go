package chatdb

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
)

func validRow() *messageRow {
	return &messageRow{
		RowID: sql.NullInt64{Int64: 7, Valid: true},
		GUID:  sql.NullString{String: "ABC-123", Valid: true},
		Date:  sql.NullInt64{Int64: 31536000 * 1_000_000_000, Valid: true},
	}
}

func TestBuildRequiredColumns(t *testing.T) {
	row := validRow()
	row.GUID = sql.NullString{}
	_, err := row.build()
	require.ErrorIs(t, err, ErrBadRow)

	row = validRow()
	row.RowID = sql.NullInt64{}
	_, err = row.build()
	require.ErrorIs(t, err, ErrBadRow)

	row = validRow()
	row.GUID = sql.NullString{String: "", Valid: true}
	_, err = row.build()
	require.ErrorIs(t, err, ErrBadRow)
}

func TestBuildDerivedFields(t *testing.T) {
	row := validRow()
	msg, err := row.build()
	require.NoError(t, err)

	require.EqualValues(t, 7, msg.RowID)
	require.Equal(t, "ABC-123", msg.GUID)
	require.InDelta(t, 978307200.0+31536000.0, msg.Date, 1e-6)

	// Null service falls back to the canonical name.
	require.Equal(t, "iMessage", msg.Service)

	// Sentinel zero means never read / never delivered.
	require.Nil(t, msg.DateRead)
	require.Nil(t, msg.DateDelivered)
	require.False(t, msg.IsDelivered)

	// Stored messages are sent by construction.
	require.True(t, msg.IsSent)

	// Placeholder columns keep their fixed values.
	require.Nil(t, msg.DeletedFrom)
	require.EqualValues(t, 0, msg.NumReplies)
}

func TestBuildEmptyServiceFallsBack(t *testing.T) {
	row := validRow()
	row.Service = sql.NullString{String: "", Valid: true}
	msg, err := row.build()
	require.NoError(t, err)
	require.Equal(t, "iMessage", msg.Service)

	row.Service = sql.NullString{String: "SMS", Valid: true}
	msg, err = row.build()
	require.NoError(t, err)
	require.Equal(t, "SMS", msg.Service)
}

func TestBuildDeliveredDerivation(t *testing.T) {
	row := validRow()
	row.DateDelivered = sql.NullInt64{Int64: 1, Valid: true}
	msg, err := row.build()
	require.NoError(t, err)
	require.True(t, msg.IsDelivered)
	require.NotNil(t, msg.DateDelivered)

	row.DateDelivered = sql.NullInt64{Int64: 0, Valid: true}
	msg, err = row.build()
	require.NoError(t, err)
	require.False(t, msg.IsDelivered)
	require.Nil(t, msg.DateDelivered)
}

func TestBuildCacheRoomnamesMirrorsThreadOriginator(t *testing.T) {
	row := validRow()
	row.ThreadOriginatorGUID = sql.NullString{String: "THREAD-1", Valid: true}
	msg, err := row.build()
	require.NoError(t, err)
	require.NotNil(t, msg.CacheRoomnames)
	require.Equal(t, "THREAD-1", *msg.CacheRoomnames)
	require.NotNil(t, msg.ThreadOriginatorGUID)
	require.Equal(t, "THREAD-1", *msg.ThreadOriginatorGUID)
}

func TestBuildPreservesAbsence(t *testing.T) {
	row := validRow()
	msg, err := row.build()
	require.NoError(t, err)
	require.Nil(t, msg.Text)
	require.Nil(t, msg.HandleID)
	require.Nil(t, msg.Subject)
	require.Nil(t, msg.GroupTitle)
	require.Nil(t, msg.AssociatedMessageGUID)
	require.Nil(t, msg.AssociatedMessageType)
	require.Nil(t, msg.ThreadOriginatorGUID)
	require.Nil(t, msg.ChatID)
}
