package stream

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hutchlabs/hutch/pkg/types"
)

func utc(hour, min int) time.Time {
	return time.Date(2025, 6, 1, hour, min, 0, 0, time.UTC)
}

func TestParseLineTextDelta(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{
			name: "simple delta",
			line: `{"event":{"type":"content_block_delta","delta":{"text":"Hi"}}}`,
			want: "Hi",
		},
		{
			name: "delta with punctuation",
			line: `{"event":{"type":"content_block_delta","delta":{"text":", "}}}`,
			want: ", ",
		},
		{
			name: "empty text discarded",
			line: `{"event":{"type":"content_block_delta","delta":{"text":""}}}`,
			want: "",
		},
		{
			name: "other event type discarded",
			line: `{"event":{"type":"content_block_start","delta":{"text":"x"}}}`,
			want: "",
		},
		{
			name: "missing delta discarded",
			line: `{"event":{"type":"content_block_delta"}}`,
			want: "",
		},
		{
			name: "non-string text discarded",
			line: `{"event":{"type":"content_block_delta","delta":{"text":42}}}`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ParseLine([]byte(tt.line))
			assert.Equal(t, tt.want, res.Text)
		})
	}
}

func TestParseLineNonObject(t *testing.T) {
	lines := []string{
		``,
		`   `,
		`[1,2,3]`,
		`"a string"`,
		`42`,
		`true`,
		`null`,
		`{not json`,
		`{"truncated": "obj`,
	}
	for _, line := range lines {
		res := ParseLineAt([]byte(line), utc(12, 0))
		assert.Equal(t, LineResult{}, res, "line %q must yield the zero result", line)
	}
}

func TestParseLineRateLimit(t *testing.T) {
	tests := []struct {
		name        string
		result      string
		now         time.Time
		wantReset   string
		wantMinutes int
	}{
		{
			name:        "am target across midnight",
			result:      "You've hit your limit. resets 6am (UTC)",
			now:         utc(22, 0),
			wantReset:   "6am",
			wantMinutes: 480,
		},
		{
			name:        "pm target same day",
			result:      "You've hit your limit. resets 8pm (UTC)",
			now:         utc(18, 0),
			wantReset:   "8pm",
			wantMinutes: 120,
		},
		{
			name:        "12pm is noon",
			result:      "You've hit your limit. resets 12pm (UTC)",
			now:         utc(10, 0),
			wantReset:   "12pm",
			wantMinutes: 120,
		},
		{
			name:        "12am is midnight",
			result:      "You've hit your limit. resets 12am (UTC)",
			now:         utc(22, 0),
			wantReset:   "12am",
			wantMinutes: 120,
		},
		{
			name:        "interpunct separator from real transcripts",
			result:      "You've hit your limit · resets 8pm (UTC)",
			now:         utc(18, 0),
			wantReset:   "8pm",
			wantMinutes: 120,
		},
		{
			name:        "bare 24-hour integer",
			result:      "hit your limit, resets 18 (UTC)",
			now:         utc(15, 30),
			wantReset:   "18",
			wantMinutes: 150,
		},
		{
			name:        "case insensitive",
			result:      "HIT YOUR LIMIT - RESETS 6AM (UTC)",
			now:         utc(22, 0),
			wantReset:   "6AM",
			wantMinutes: 480,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := `{"type":"result","is_error":true,"result":` + quoteJSON(tt.result) + `}`
			res := ParseLineAt([]byte(line), tt.now)
			require.NotNil(t, res.RateLimit, "expected a rate-limit signal")
			assert.Equal(t, tt.wantReset, res.RateLimit.ResetTime)
			assert.Equal(t, tt.wantMinutes, res.RateLimit.WaitMinutes)
			assert.Equal(t, tt.result, res.RateLimit.Raw)
		})
	}
}

func TestParseLineRateLimitNotDetected(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{
			name: "is_error false",
			line: `{"type":"result","is_error":false,"result":"hit your limit. resets 6am (UTC)"}`,
		},
		{
			name: "wrong type",
			line: `{"type":"assistant","is_error":true,"result":"hit your limit. resets 6am (UTC)"}`,
		},
		{
			name: "no UTC marker",
			line: `{"type":"result","is_error":true,"result":"hit your limit. resets 6am"}`,
		},
		{
			name: "non-string result tolerated",
			line: `{"type":"result","is_error":true,"result":{"code":429}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ParseLineAt([]byte(tt.line), utc(12, 0))
			assert.Nil(t, res.RateLimit)
		})
	}
}

func TestWaitMinutesRange(t *testing.T) {
	// The wait is always within a day, whatever the clock and target.
	for hour := 0; hour < 24; hour++ {
		for _, now := range []time.Time{utc(0, 0), utc(11, 59), utc(12, 0), utc(23, 30)} {
			got := minutesUntilHour(now, hour)
			assert.GreaterOrEqual(t, got, 0, "hour=%d now=%v", hour, now)
			assert.Less(t, got, 1440, "hour=%d now=%v", hour, now)
		}
	}

	// Exactly at the reset hour means no wait.
	assert.Equal(t, 0, minutesUntilHour(utc(6, 0), 6))
}

func TestParseLineAuth(t *testing.T) {
	tests := []struct {
		name     string
		result   string
		wantKind types.ErrorKind
		wantMsg  string
	}{
		{
			name:     "expired token",
			result:   "OAuth token has expired. Run /login.",
			wantKind: types.ErrorKindAuthTokenExpired,
			wantMsg:  "OAuth token has expired",
		},
		{
			name:     "failed to authenticate",
			result:   "Failed to authenticate with the API",
			wantKind: types.ErrorKindAuthFailed,
			wantMsg:  "Failed to authenticate",
		},
		{
			name:     "authentication_error marker",
			result:   `{"type":"authentication_error"}`,
			wantKind: types.ErrorKindAuthFailed,
			wantMsg:  "Failed to authenticate",
		},
		{
			name:     "expired wins over generic",
			result:   "Failed to authenticate: OAuth token has expired",
			wantKind: types.ErrorKindAuthTokenExpired,
			wantMsg:  "OAuth token has expired",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := `{"type":"result","is_error":true,"result":` + quoteJSON(tt.result) + `}`
			res := ParseLine([]byte(line))
			require.NotNil(t, res.Auth)
			assert.Equal(t, tt.wantKind, res.Auth.Kind)
			assert.Equal(t, tt.wantMsg, res.Auth.Message)
		})
	}

	t.Run("ordinary error is not auth", func(t *testing.T) {
		line := `{"type":"result","is_error":true,"result":"command not found: jq"}`
		res := ParseLine([]byte(line))
		assert.Nil(t, res.Auth)
		assert.Nil(t, res.RateLimit)
	})
}

func TestParseLineSessionID(t *testing.T) {
	res := ParseLine([]byte(`{"type":"system","subtype":"init","session_id":"abc-123"}`))
	assert.Equal(t, "abc-123", res.SessionID)

	// session_id rides along on result lines too
	res = ParseLine([]byte(`{"type":"result","is_error":false,"result":"done","session_id":"xyz"}`))
	assert.Equal(t, "xyz", res.SessionID)

	// non-string session_id tolerated
	res = ParseLine([]byte(`{"session_id":17}`))
	assert.Equal(t, "", res.SessionID)
}

func TestParseLineIsPure(t *testing.T) {
	line := []byte(`{"type":"result","is_error":true,"result":"hit your limit. resets 8pm (UTC)","session_id":"s1"}`)
	now := utc(18, 0)
	first := ParseLineAt(line, now)
	second := ParseLineAt(line, now)
	assert.Equal(t, first, second)
}

func TestExtractTextFromStream(t *testing.T) {
	input := strings.Join([]string{
		`{"event":{"type":"content_block_delta","delta":{"text":"Hi"}}}`,
		`not json at all`,
		`{"event":{"type":"content_block_delta","delta":{"text":", "}}}`,
		`[1,2,3]`,
		`{"event":{"type":"message_stop"}}`,
		`{"event":{"type":"content_block_delta","delta":{"text":"world"}}}`,
		`{"type":"result","is_error":false,"result":"ok"}`,
	}, "\n")

	got, err := ExtractTextFromStream(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, "Hi, world", got)
}

func TestExtractTextFromStreamEmpty(t *testing.T) {
	got, err := ExtractTextFromStream(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestLineBuffer(t *testing.T) {
	t.Run("line split across chunks", func(t *testing.T) {
		var lb LineBuffer
		lines := lb.Split([]byte(`{"event":{"type":"content_blo`))
		assert.Empty(t, lines)

		lines = lb.Split([]byte("ck_delta\",\"delta\":{\"text\":\"Hi\"}}}\n"))
		require.Len(t, lines, 1)
		assert.Equal(t, "Hi", ParseLine(lines[0]).Text)
	})

	t.Run("multiple lines in one chunk", func(t *testing.T) {
		var lb LineBuffer
		lines := lb.Split([]byte("a\nb\nc"))
		require.Len(t, lines, 2)
		assert.Equal(t, "a", string(lines[0]))
		assert.Equal(t, "b", string(lines[1]))

		assert.Equal(t, "c", string(lb.Drain()))
		assert.Nil(t, lb.Drain())
	})

	t.Run("drain on clean boundary", func(t *testing.T) {
		var lb LineBuffer
		lb.Split([]byte("complete line\n"))
		assert.Nil(t, lb.Drain())
	})

	t.Run("returned lines do not alias the buffer", func(t *testing.T) {
		var lb LineBuffer
		lines := lb.Split([]byte("first\nsec"))
		lb.Split([]byte("ond\n"))
		assert.Equal(t, "first", string(lines[0]))
	})
}

// quoteJSON encodes s as a JSON string literal.
func quoteJSON(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
