/*
Package notify is the outbound notification port for terminal job
transitions.

A watcher (or Cancel) fires exactly one notification when a job reaches
completed, failed or cancelled. Delivery is fire-and-forget by contract: the
caller logs a failure and moves on, never retries, never blocks job state on
the webhook being up. The reconciler and the status self-healing path do not
notify at all — nobody was waiting in those sessions.

WebhookNotifier POSTs the JSON payload with a 10 second client timeout;
NopNotifier stands in when no webhook URL is configured.
*/
package notify
