/*
Package runtime is the container engine port: the supervisor's only view of
docker or containerd.

# Architecture

	┌────────────┐   Runtime interface   ┌────────────────────┐
	│ supervisor │ ────────────────────▶ │ DockerEngine       │──▶ dockerd
	│ reconciler │                       │ ContainerdEngine   │──▶ containerd
	└────────────┘                       └────────────────────┘

The interface carries intent only (StartOptions: name, prompt, workspace,
credentials, resume handle). All sandboxing — memory and CPU limits,
no-new-privileges, mounts — is decided inside the engines, never by callers.

# Name Mapping

Container names are the supervisor's join key between persisted jobs and live
containers. ContainerNameForSession and SessionKeyFromContainerName are pure
package-level functions; the round-trip property (strip then derive yields
the same claude- name) is what makes orphan reconciliation sound.

# Engines

DockerEngine (default) uses the official SDK with API-version negotiation.
StreamLogs follows the multiplexed log stream through stdcopy and settles the
exit code with ContainerWait. Stats come from a non-streaming two-sample pull
so the CPU delta is meaningful.

ContainerdEngine adapts the same surface to a daemon-less host: task output
is routed through a cio.LogFile staging file which StreamLogs tails until the
task's wait channel fires. Task metrics are shim-specific typeurl payloads,
so GetStats reports nil there; callers treat nil as "no sample".

Introspection calls (GetStatus, GetStats, ListByPrefix, CheckImage, Ping)
self-impose the configured budget (default 5s) so a wedged engine socket
never hangs an API request.

# Integration Points

  - pkg/supervisor: StartDetached + StreamLogs drive the watcher
  - pkg/reconciler: ListByPrefix + GetStatus + GetLogs + Kill
  - pkg/api: Ping feeds the readiness check
*/
package runtime
