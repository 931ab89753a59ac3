/*
Package stream decodes the assistant CLI's newline-delimited JSON transcript.

A job's container runs the assistant with --output-format stream-json, which
writes one JSON object per line to stdout. This package turns those raw bytes
into the three things the supervisor cares about: visible text, terminal
failure signals, and the assistant's conversation handle.

# Line Dialect

The transcript dialect is produced by an external tool and is not versioned,
so the decoder is deliberately tolerant: every line is probed dynamically and
anything unrecognized is silently discarded. A malformed or unknown-shape
line must never fail parsing.

Recognized shapes:

	{"event":{"type":"content_block_delta","delta":{"text":"Hi"}}}
	    → text delta, appended verbatim to the job's output log

	{"type":"result","is_error":true,"result":"...hit your limit · resets 8pm (UTC)..."}
	    → rate-limit terminal signal with a computed wait

	{"type":"result","is_error":true,"result":"...OAuth token has expired..."}
	    → auth terminal signal (auth_token_expired / auth_failed)

	{..., "session_id":"<opaque>"}
	    → conversation handle for --resume on the next job

Both signal detectors run on every line independently; their JSON shapes are
disjoint, so a single line never produces conflicting signals.

# Rate-Limit Wait Computation

The reset hour token ("6am", "8pm", "12am", "12pm", or a bare 24-hour
integer) is mapped to a clock hour, and WaitMinutes is the distance from the
current UTC wall clock to the next occurrence of that hour, wrapping to the
next day when the hour is already past. The result is always in [0, 1440).

ParseLineAt takes the clock as an argument, which keeps the function pure and
lets tests pin the wall time.

# Chunk Reassembly

Container log streams deliver arbitrary byte chunks, so a JSON object can be
split across reads. LineBuffer reassembles newline-terminated lines:

	var lb stream.LineBuffer
	for chunk := range chunks {
		for _, line := range lb.Split(chunk) {
			res := stream.ParseLine(line)
			...
		}
	}
	if last := lb.Drain(); last != nil {
		res := stream.ParseLine(last) // partial final line at EOF
	}

# See Also

  - pkg/supervisor: the watcher is the only production consumer
  - pkg/types: ErrorKind constants referenced by AuthSignal
*/
package stream
