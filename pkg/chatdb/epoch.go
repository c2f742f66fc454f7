package chatdb

// appleEpochOffset is the Unix timestamp of the Apple reference date
// (2001-01-01T00:00:00Z). chat.db stores timestamps as integer nanoseconds
// elapsed since that date.
const appleEpochOffset = 978307200

// AppleTime converts Unix seconds to the chat.db internal representation:
// nanoseconds since the Apple reference date, truncated.
func AppleTime(unixSeconds float64) int64 {
	return int64((unixSeconds - appleEpochOffset) * 1e9)
}

// UnixTime converts a chat.db internal timestamp back to Unix seconds.
func UnixTime(appleNS int64) float64 {
	return float64(appleNS)/1e9 + appleEpochOffset
}

// unixTimeOrNil maps an internal timestamp to Unix seconds, treating the
// raw value 0 as "event never happened" rather than a timestamp at the
// reference date.
func unixTimeOrNil(appleNS int64) *float64 {
	if appleNS == 0 {
		return nil
	}
	v := UnixTime(appleNS)
	return &v
}
