package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hutchlabs/hutch/pkg/types"
)

// maxLineBytes bounds a single transcript line. Assistant deltas are small
// but result payloads can carry whole file contents.
const maxLineBytes = 1024 * 1024

// rateLimitPattern tolerates the separator variants seen in real transcripts
// ("limit · resets", "limit. resets", "limit resets").
var rateLimitPattern = regexp.MustCompile(`(?i)hit your limit.*resets\s+(\d{1,2}(?:am|pm)?)\s*\(UTC\)`)

// RateLimitSignal is a terminal signal extracted from an error result line.
type RateLimitSignal struct {
	// ResetTime is the hour token as it appeared, e.g. "8pm".
	ResetTime string
	// WaitMinutes is the wall-clock distance to the reset hour, in [0, 1440).
	WaitMinutes int
	// Raw is the full result text the signal was extracted from.
	Raw string
}

// AuthSignal is a terminal authentication failure extracted from an error
// result line.
type AuthSignal struct {
	Kind    types.ErrorKind // auth_token_expired or auth_failed
	Message string
}

// LineResult is everything a single transcript line can yield. The zero
// value means the line carried nothing of interest.
type LineResult struct {
	// Text is a non-empty assistant text delta, if the line carried one.
	Text string
	// RateLimit is set when the line is an error result matching the
	// rate-limit pattern.
	RateLimit *RateLimitSignal
	// Auth is set when the line is an error result carrying an
	// authentication failure.
	Auth *AuthSignal
	// SessionID is the assistant's conversation handle when the line
	// carried a top-level session_id.
	SessionID string
}

// ParseLineAt decodes one transcript line. It is pure: the result depends
// only on the line and the supplied clock, and malformed input never returns
// an error. Non-object lines (arrays, scalars, garbage) yield the zero
// result. Both terminal-signal detectors run on every line; their JSON
// shapes are disjoint so at most one family matches.
func ParseLineAt(line []byte, now time.Time) LineResult {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return LineResult{}
	}

	// The transcript dialect is unstable, so fields are probed dynamically
	// rather than decoded into a rigid schema. Unmarshal into a map also
	// doubles as the is-object check.
	var obj map[string]interface{}
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return LineResult{}
	}

	var res LineResult

	if event, ok := obj["event"].(map[string]interface{}); ok {
		if t, _ := event["type"].(string); t == "content_block_delta" {
			if delta, ok := event["delta"].(map[string]interface{}); ok {
				if text, _ := delta["text"].(string); text != "" {
					res.Text = text
				}
			}
		}
	}

	if t, _ := obj["type"].(string); t == "result" {
		if isErr, _ := obj["is_error"].(bool); isErr {
			if msg, _ := obj["result"].(string); msg != "" {
				res.RateLimit = detectRateLimit(msg, now)
				res.Auth = detectAuth(msg)
			}
		}
	}

	if sid, _ := obj["session_id"].(string); sid != "" {
		res.SessionID = sid
	}

	return res
}

// ParseLine is ParseLineAt against the wall clock.
func ParseLine(line []byte) LineResult {
	return ParseLineAt(line, time.Now())
}

func detectRateLimit(msg string, now time.Time) *RateLimitSignal {
	m := rateLimitPattern.FindStringSubmatch(msg)
	if m == nil {
		return nil
	}
	hour := parseResetHour(strings.ToLower(m[1]))
	return &RateLimitSignal{
		ResetTime:   m[1],
		WaitMinutes: minutesUntilHour(now.UTC(), hour),
		Raw:         msg,
	}
}

// parseResetHour maps an hour token to a 24-hour clock hour:
// "12am" → 0, "12pm" → 12, "Npm" → N+12, "Nam" → N, bare "N" → N.
func parseResetHour(token string) int {
	suffix := ""
	num := token
	if strings.HasSuffix(token, "am") || strings.HasSuffix(token, "pm") {
		suffix = token[len(token)-2:]
		num = token[:len(token)-2]
	}
	n, err := strconv.Atoi(num)
	if err != nil {
		return 0
	}
	switch suffix {
	case "am":
		if n == 12 {
			n = 0
		}
	case "pm":
		if n != 12 {
			n += 12
		}
	}
	return n % 24
}

// minutesUntilHour computes minutes from now (UTC) to the next occurrence of
// the given hour, wrapping to the next day when the hour is already past.
// The result is always in [0, 1440).
func minutesUntilHour(now time.Time, hour int) int {
	target := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if target.Before(now) {
		target = target.Add(24 * time.Hour)
	}
	return int(target.Sub(now) / time.Minute)
}

func detectAuth(msg string) *AuthSignal {
	if strings.Contains(msg, "OAuth token has expired") {
		return &AuthSignal{
			Kind:    types.ErrorKindAuthTokenExpired,
			Message: "OAuth token has expired",
		}
	}
	if strings.Contains(msg, "Failed to authenticate") || strings.Contains(msg, "authentication_error") {
		return &AuthSignal{
			Kind:    types.ErrorKindAuthFailed,
			Message: "Failed to authenticate",
		}
	}
	return nil
}

// ExtractTextFromStream concatenates the text deltas of a whole transcript
// in input order, ignoring every other line.
func ExtractTextFromStream(r io.Reader) (string, error) {
	var sb strings.Builder
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if res := ParseLine(scanner.Bytes()); res.Text != "" {
			sb.WriteString(res.Text)
		}
	}
	if err := scanner.Err(); err != nil {
		return sb.String(), err
	}
	return sb.String(), nil
}

// LineBuffer reassembles newline-terminated lines from arbitrary chunk
// boundaries. A JSON object split across two reads comes out whole.
type LineBuffer struct {
	buf []byte
}

// Split appends a chunk and returns every complete line it now holds,
// without trailing newlines. Returned slices do not alias the buffer.
func (b *LineBuffer) Split(chunk []byte) [][]byte {
	b.buf = append(b.buf, chunk...)
	var lines [][]byte
	for {
		i := bytes.IndexByte(b.buf, '\n')
		if i < 0 {
			break
		}
		line := make([]byte, i)
		copy(line, b.buf[:i])
		lines = append(lines, line)
		b.buf = b.buf[i+1:]
	}
	if len(b.buf) == 0 {
		b.buf = nil
	}
	return lines
}

// Drain returns the trailing partial line, if any, and resets the buffer.
// Call once at stream EOF.
func (b *LineBuffer) Drain() []byte {
	if len(b.buf) == 0 {
		return nil
	}
	line := b.buf
	b.buf = nil
	return line
}
