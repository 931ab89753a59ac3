/*
Package api is hutch's outward surface: an MCP stdio server exposing six
tools over the supervisor, plus an optional admin HTTP listener.

Tools: start, status, output, cancel, cleanup, sessions. Each tool is a
definition in tools.go, a handler closure in handlers.go and a text
formatter in formatters.go. Handlers are instrumented with request counts
and durations.

Error surfacing follows one rule: conditions the host agent should treat as
an answer — job not found, job already finished, nothing to clean up — come
back as plain text results; conditions it must not proceed past — missing
required parameters, missing credentials, missing image, a second start on a
busy session — come back as MCP error results.

Stdout belongs to the MCP protocol, so everything else the process says goes
to stderr. The admin listener (health.go) serves /health, /ready (store and
engine probes) and /metrics on its own address.
*/
package api
