// Copyright (c) 2025 dogwoodfire
// MouseEye - timelapse deploy orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

// package remote renders the command strings the pipeline runs on the target
// host. Each composite step is an explicit ordered list of sub-commands with
// a per-command failure policy, executed as discrete SSH invocations, so a
// failing sub-command is reported by name instead of as one opaque shell
// string.
package remote

import (
	"fmt"
	"strings"
)

// SubCommand is one remote invocation inside a composite step, named so a
// failure can be attributed to it.
type SubCommand struct {
	Name string
	Cmd  string
}

// shellQuote wraps s in single quotes for the remote shell, escaping any
// embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// inDir prefixes cmd with a change into the repository checkout, so every
// invocation runs with the working directory pre-set.
func inDir(dir, cmd string) string {
	return fmt.Sprintf("cd %s && %s", shellQuote(dir), cmd)
}

// PullCommands is the fast-forward update of the remote checkout: fetch all
// refs, switch to the configured branch, then pull only if the remote history
// is a strict continuation of the local one. Every sub-command aborts the
// step on failure.
func PullCommands(dir, branch string) []SubCommand {
	return []SubCommand{
		{Name: "fetch", Cmd: inDir(dir, "git fetch --all")},
		{Name: "checkout", Cmd: inDir(dir, "git checkout "+shellQuote(branch))},
		{Name: "pull", Cmd: inDir(dir, "git pull --ff-only origin "+shellQuote(branch))},
	}
}

// FetchCommand is the first sub-command of a hard pull.
func FetchCommand(dir string) SubCommand {
	return SubCommand{Name: "fetch", Cmd: inDir(dir, "git fetch --all")}
}

// DiffCommand captures the remote checkout's uncommitted changes, staged and
// unstaged, for the best-effort backup taken before a hard reset.
func DiffCommand(dir string) SubCommand {
	return SubCommand{Name: "diff", Cmd: inDir(dir, "git diff HEAD")}
}

// HardResetCommand discards the remote working tree to exactly match the
// remote branch tip.
func HardResetCommand(dir, branch string) SubCommand {
	return SubCommand{Name: "reset", Cmd: inDir(dir, "git reset --hard origin/"+shellQuote(branch))}
}

// RestartCommand restarts the service via systemd. The pi user is expected to
// hold a sudoers entry for this.
func RestartCommand(service string) string {
	return "sudo systemctl restart " + shellQuote(service)
}

// StatusCommand prints the full service status.
func StatusCommand(service string) string {
	return "systemctl status --full --no-pager " + shellQuote(service)
}

// LogsCommand tails the service journal and follows it until interrupted.
func LogsCommand(service string) string {
	return "journalctl -u " + shellQuote(service) + " -f -n 50"
}
