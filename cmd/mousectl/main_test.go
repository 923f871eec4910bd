package main

import "testing"

func TestRootCmd_RegistersAllSubcommands(t *testing.T) {
	cmd := newRootCmd()

	want := []string{
		"deploy", "deploy-force",
		"commit", "push", "pull", "pull-hard", "restart",
		"status", "logs",
		"fetch-backup", "history", "trust-host", "init",
	}
	for _, name := range want {
		found := false
		for _, sub := range cmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestRootCmd_PersistentFlags(t *testing.T) {
	cmd := newRootCmd()

	for _, name := range []string{
		"config", "host", "user", "remote-dir", "service",
		"branch", "message", "key", "db-type", "db-dsn", "lang", "debug",
	} {
		if cmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("persistent flag %q not defined", name)
		}
	}

	if f := cmd.PersistentFlags().Lookup("host"); f.DefValue != "raspberrypi.local" {
		t.Errorf("host default = %q, want raspberrypi.local", f.DefValue)
	}
	if f := cmd.PersistentFlags().Lookup("message"); f.Shorthand != "m" {
		t.Errorf("message shorthand = %q, want m", f.Shorthand)
	}
}

func TestRootCmd_HasVersion(t *testing.T) {
	if newRootCmd().Version == "" {
		t.Error("root command has no version set")
	}
}
