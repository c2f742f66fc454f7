package chatdb

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessagesAfterQueryBounds(t *testing.T) {
	for _, cursor := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), -1} {
		_, _, err := messagesAfterQuery(cursor, 0)
		require.Error(t, err, "cursor %v should be rejected", cursor)
	}
}

func TestMessagesAfterQueryShape(t *testing.T) {
	query, args, err := messagesAfterQuery(978307200, 0)
	require.NoError(t, err)
	require.Equal(t, []any{int64(0)}, args)
	require.NotContains(t, query, "LIMIT")
	require.Contains(t, query, "WHERE m.date > $1")
	require.Contains(t, query, "ORDER BY m.date ASC")
	require.Contains(t, query, "num_attachments")
	require.Contains(t, query, "NULL AS deleted_from")
	require.Contains(t, query, "0 AS num_replies")
}

func TestMessagesAfterQueryLimit(t *testing.T) {
	query, args, err := messagesAfterQuery(0, 25)
	require.NoError(t, err)
	require.Len(t, args, 2)
	require.Equal(t, 25, args[1])
	require.Contains(t, query, "LIMIT $2")
}

func TestMessageByIDQuerySharesProjection(t *testing.T) {
	afterQuery, _, err := messagesAfterQuery(0, 0)
	require.NoError(t, err)
	byIDQuery, args := messageByIDQuery(42)
	require.Equal(t, []any{int64(42)}, args)

	// Both queries must project the same columns so one scanner serves both.
	project := func(q string) string {
		return strings.TrimSpace(strings.Split(q, "FROM message")[0])
	}
	require.Equal(t, project(afterQuery), project(byIDQuery))
}

func TestNoInterpolatedValues(t *testing.T) {
	query, _, err := messagesAfterQuery(1700000000.5, 99)
	require.NoError(t, err)
	require.NotContains(t, query, "99")
	require.NotContains(t, query, "1700000000")
}
