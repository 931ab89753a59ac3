/*
Package security handles assistant credential discovery and materialization.

Job containers authenticate the assistant CLI one of two ways:

  - Credential files. The host's ~/.claude directory (or a configured
    source) is copied into the session's credential sink
    (<sessionsDir>/<key>/.claude/) before each job starts, and the sink is
    bind-mounted into the container. Materialize performs the copy with
    owner-only permissions (directories 0700, files 0600) and treats the
    contents as opaque bytes.

  - Environment token. When CLAUDE_CODE_OAUTH_TOKEN is set, the runtime
    engines pass it straight into the container environment and no files
    are needed.

Discovery (SourceUsable, HasToken) runs in cmd/hutch at start-up; the
supervisor itself only receives a boolean "credentials available" capability
and the per-session sink path. Keeping discovery out of the core means the
supervisor never reads the host's home directory.

Nothing here encrypts anything: the source material is already plaintext on
the host and the sink lives under the same user. The package's job is
containment (copy-not-mount of the real source, so a compromised container
cannot corrupt the host's credentials) and strict permissions.
*/
package security
