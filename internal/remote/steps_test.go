// Copyright (c) 2025 dogwoodfire
// MouseEye - timelapse deploy orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

package remote

import (
	"strings"
	"testing"
	"time"
)

func TestPullCommands_OrderAndContent(t *testing.T) {
	cmds := PullCommands("/home/pi/timelapse", "main")

	if len(cmds) != 3 {
		t.Fatalf("expected 3 sub-commands, got %d", len(cmds))
	}
	wantNames := []string{"fetch", "checkout", "pull"}
	for i, name := range wantNames {
		if cmds[i].Name != name {
			t.Errorf("sub-command %d: expected %s, got %s", i, name, cmds[i].Name)
		}
		if !strings.HasPrefix(cmds[i].Cmd, "cd '/home/pi/timelapse' && ") {
			t.Errorf("sub-command %s must run in the checkout, got %q", name, cmds[i].Cmd)
		}
	}
	if !strings.Contains(cmds[2].Cmd, "--ff-only") {
		t.Errorf("pull must be fast-forward-only, got %q", cmds[2].Cmd)
	}
}

// Overriding one configuration value must change exactly the corresponding
// tokens in the rendered commands and nothing else.
func TestCommands_OverridesAreIndependent(t *testing.T) {
	base := PullCommands("/home/pi/timelapse", "main")
	branched := PullCommands("/home/pi/timelapse", "feature/lens-cap")

	if branched[0].Cmd != base[0].Cmd {
		t.Errorf("branch override must not alter the fetch command: %q vs %q", branched[0].Cmd, base[0].Cmd)
	}
	if !strings.Contains(branched[1].Cmd, "feature/lens-cap") || !strings.Contains(branched[2].Cmd, "feature/lens-cap") {
		t.Errorf("branch override missing from checkout/pull: %q, %q", branched[1].Cmd, branched[2].Cmd)
	}

	if got := RestartCommand("motioneye.service"); !strings.Contains(got, "motioneye.service") {
		t.Errorf("service override missing from restart: %q", got)
	}
	// Service must not leak into git commands.
	for _, c := range PullCommands("/home/pi/timelapse", "main") {
		if strings.Contains(c.Cmd, "motioneye") {
			t.Errorf("service name leaked into %q", c.Cmd)
		}
	}
}

func TestServiceCommands(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want []string
	}{
		{"restart", RestartCommand("timelapse.service"), []string{"sudo systemctl restart", "'timelapse.service'"}},
		{"status", StatusCommand("timelapse.service"), []string{"systemctl status", "--full", "--no-pager"}},
		{"logs", LogsCommand("timelapse.service"), []string{"journalctl -u", "-f"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, frag := range tt.want {
				if !strings.Contains(tt.got, frag) {
					t.Errorf("%s command %q missing %q", tt.name, tt.got, frag)
				}
			}
		})
	}
}

func TestHardResetCommand_TargetsRemoteBranchTip(t *testing.T) {
	cmd := HardResetCommand("/home/pi/timelapse", "main")
	if !strings.Contains(cmd.Cmd, "git reset --hard origin/'main'") {
		t.Errorf("unexpected reset command %q", cmd.Cmd)
	}
}

func TestShellQuote_EscapesSingleQuotes(t *testing.T) {
	got := shellQuote("it's")
	if got != `'it'"'"'s'` {
		t.Errorf("unexpected quoting %q", got)
	}
}

func TestBackupName_UsesReportedHostnameAndUTC(t *testing.T) {
	ts := time.Date(2025, 8, 29, 14, 30, 5, 0, time.FixedZone("CEST", 2*60*60))
	name := BackupName("mouseye-pi", ts)

	if name != "mouseye-pi-20250829-123005.diff.zst" {
		t.Errorf("unexpected backup name %q", name)
	}
}

func TestBackupPath(t *testing.T) {
	got := BackupPath("/home/pi/timelapse", "mouseye-pi-20250829-123005.diff.zst")
	want := "/home/pi/timelapse/.mousectl-backups/mouseye-pi-20250829-123005.diff.zst"
	if got != want {
		t.Errorf("BackupPath = %q, want %q", got, want)
	}
}

func TestCompressDiff_RoundTrips(t *testing.T) {
	diff := []byte("diff --git a/app.py b/app.py\n-CAPTURE_INTERVAL_SEC = 10\n+CAPTURE_INTERVAL_SEC = 5\n")

	packed, err := CompressDiff(diff)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if len(packed) == 0 {
		t.Fatal("compressed output is empty")
	}

	unpacked, err := DecompressDiff(packed)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if string(unpacked) != string(diff) {
		t.Errorf("round trip mismatch: got %q", unpacked)
	}
}
