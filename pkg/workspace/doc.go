/*
Package workspace manages per-session working directories.

Each session owns exactly one workspace under the configured base directory:

	<workspacesDir>/<sessionKey>/

The workspace is bind-mounted into the session's containers as the working
tree the assistant edits. It is externally writable and outlives the session
record: DeleteSession never touches it, and cleanup removes it only when the
caller passes an explicit opt-in. Losing a workspace loses user code, so the
asymmetry is deliberate and enforced here by keeping workspace removal a
separate call from everything else.

Usage:

	ws, err := workspace.NewManager(cfg.WorkspacesDir)
	path, err := ws.Ensure(sessionKey) // create if missing, return host path
	_ = ws.Remove(sessionKey)          // only from opt-in cleanup paths
*/
package workspace
