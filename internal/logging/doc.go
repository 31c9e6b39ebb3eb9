// Package logging provides file-based logging with rotation for LocalAgent.
// Logs are always written under ~/.localagent/logs/: the daemon writes
// daemon.log (and stderr) at the configured level, and the CLI writes
// cli.log only. The CLI's --debug flag raises its level to debug and also
// sends its log lines to stderr.
package logging
