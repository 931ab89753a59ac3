/*
Package reconciler brings job records and containers back in line after a
restart.

The supervisor's watchers die with the process; their containers do not. One
pass at start-up lists every container carrying the claude- name prefix and
settles each one:

  - still running with a matching running job: adopt it (leave both alone;
    status polling and its self-healing take over)
  - exited with a matching running job: recover the transcript into the
    output log, classify from the exit code, record the terminal status,
    remove the container
  - no matching session or no active job: remove the container
  - name not ours after all: skip

Finalized jobs never trigger notifications — the process was down, the
moment has passed. Every per-container failure is logged and skipped; a
reconciliation pass never blocks start-up.
*/
package reconciler
