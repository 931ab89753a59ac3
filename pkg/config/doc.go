/*
Package config owns Hutch's runtime configuration.

Settings flow through three layers, later layers winning:

 1. Default() — compiled-in defaults
 2. LoadFile() — optional YAML file (--config)
 3. CLI flags — applied by cmd/hutch on top of the result

Validate() is called once after layering; it rejects inconsistent settings and
expands a leading ~ in the directory paths to the user's home directory.

Timeout fields are plain seconds so the YAML file and flags stay human-editable;
components consume them through the Duration accessors (IdleTimeout,
StartupTimeout, IdleOutputTimeout, StatusBudget).

Example file:

	sessionsDir: ~/.hutch/sessions
	workspacesDir: ~/.hutch/workspaces
	image: claude-agent:latest
	engine: docker
	idleTimeoutSeconds: 3600
	startupTimeoutSeconds: 120
	idleOutputTimeoutSeconds: 600
	cleanupSchedule: "@every 10m"
	webhookUrl: https://hooks.example.com/hutch
	healthAddr: 127.0.0.1:9611
	logLevel: info
	logJson: true
*/
package config
