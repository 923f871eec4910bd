// Copyright (c) 2025 dogwoodfire
// MouseEye - timelapse deploy orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/dogwoodfire/MouseEye/internal/config"
	"github.com/dogwoodfire/MouseEye/internal/db"
	"github.com/dogwoodfire/MouseEye/internal/gitx"
	"github.com/dogwoodfire/MouseEye/internal/i18n"
	"github.com/dogwoodfire/MouseEye/internal/remote"
	"github.com/dogwoodfire/MouseEye/internal/report"
	"github.com/dogwoodfire/MouseEye/internal/scenario"
	"github.com/dogwoodfire/MouseEye/internal/sshexec"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"
)

// newOrchestrator wires the resolved run configuration to the real
// collaborators: the local git binary, the SSH dialer, and the history store.
func newOrchestrator() (*scenario.Orchestrator, *report.Reporter) {
	rep := report.New(os.Stdout)
	dial := func() (scenario.RemoteRunner, error) {
		key, err := loadPrivateKey(runCfg.KeyPath)
		if err != nil {
			return nil, err
		}
		pass, err := passphraseFor(key)
		if err != nil {
			return nil, err
		}
		r, err := sshexec.Dial(runCfg.Host, runCfg.User, key, pass, db.Default())
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	return scenario.New(runCfg, gitx.New(), dial, db.Default(), rep), rep
}

// fail prints the error (plus a remediation hint when one applies) and exits.
func fail(err error) {
	fmt.Fprintln(os.Stderr, i18n.T("cli.error", err))
	if hint := sshexec.Remediation(err); hint != "" {
		fmt.Fprintln(os.Stderr, i18n.T("cli.hint", hint))
	}
	os.Exit(1)
}

// interruptContext is cancelled when the user hits ctrl-c.
func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// deployCmd runs the standard pipeline: commit → push → pi-pull → pi-restart.
var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Commit, push, pull on the Pi, and restart the service",
	Long: `Runs the full deploy pipeline: stage and commit local changes (a clean
tree is fine), push the branch to origin, fast-forward the checkout on the
Pi, and restart the service. The pipeline stops at the first failing step.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := interruptContext()
		defer stop()
		o, rep := newOrchestrator()
		if err := o.Deploy(ctx); err != nil {
			fail(err)
		}
		rep.Successf("%s", i18n.T("deploy.success", runCfg.Service, runCfg.Host))
	},
}

// deployForceCmd is deploy with a hard reset of the remote checkout.
var deployForceCmd = &cobra.Command{
	Use:   "deploy-force",
	Short: "Deploy, discarding any uncommitted changes on the Pi",
	Long: `Like deploy, but the Pi's checkout is hard-reset to the pushed branch
tip. Uncommitted remote changes are first saved to a timestamped,
zstd-compressed diff under the checkout (best effort; a failed backup
does not stop the deploy).`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := interruptContext()
		defer stop()
		o, rep := newOrchestrator()
		if err := o.DeployForce(ctx); err != nil {
			fail(err)
		}
		rep.Successf("%s", i18n.T("deploy.success", runCfg.Service, runCfg.Host))
	},
}

// Single-step commands, for when only part of the pipeline is wanted.

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Stage and commit all local changes",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runSingleStep(func(ctx context.Context, o *scenario.Orchestrator) error {
			return o.Commit(ctx)
		})
	},
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push the configured branch to origin",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runSingleStep(func(ctx context.Context, o *scenario.Orchestrator) error {
			return o.Push(ctx)
		})
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Fast-forward the checkout on the Pi",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runSingleStep(func(ctx context.Context, o *scenario.Orchestrator) error {
			return o.Pull(ctx)
		})
	},
}

var pullHardCmd = &cobra.Command{
	Use:   "pull-hard",
	Short: "Hard-reset the checkout on the Pi (with best-effort backup)",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runSingleStep(func(ctx context.Context, o *scenario.Orchestrator) error {
			return o.PullHard(ctx)
		})
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the service on the Pi",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runSingleStep(func(ctx context.Context, o *scenario.Orchestrator) error {
			return o.Restart(ctx)
		})
	},
}

// runSingleStep executes one scenario function with interrupt handling.
func runSingleStep(run func(context.Context, *scenario.Orchestrator) error) {
	ctx, stop := interruptContext()
	defer stop()
	o, _ := newOrchestrator()
	if err := run(ctx, o); err != nil {
		fail(err)
	}
}

// statusCmd prints the full systemd status of the service. Report-only; it
// is never part of a deploy pipeline.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the service status on the Pi",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := interruptContext()
		defer stop()
		o, rep := newOrchestrator()
		out, err := o.Status(ctx)
		if out != "" {
			rep.Printf("%s", out)
		}
		if err != nil {
			if out == "" {
				fail(err)
			}
			// systemctl exits non-zero for a stopped service; the output
			// above already says so.
			os.Exit(1)
		}
	},
}

// logsCmd follows the service journal until the user interrupts it.
var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Tail and follow the service journal on the Pi",
	Long: `Streams 'journalctl -u <service> -f' from the Pi. The stream has no
timeout; stop it with ctrl-c.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := interruptContext()
		defer stop()
		o, _ := newOrchestrator()
		if err := o.Logs(os.Stdout, os.Stderr, ctx.Done()); err != nil {
			fail(err)
		}
	},
}

// fetchBackupCmd downloads a hard-pull backup from the Pi.
var fetchBackupCmd = &cobra.Command{
	Use:   "fetch-backup <name>",
	Short: "Download a hard-pull diff backup from the Pi",
	Long: `Downloads the named backup file from the Pi's backup directory into the
current directory. Backup names are printed by pull-hard and deploy-force
when they save one. With --extract the diff is decompressed so it can be
applied with 'git apply' directly.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name := args[0]
		extract, _ := cmd.Flags().GetBool("extract")

		o, _ := newOrchestrator()
		data, err := o.FetchBackup(name)
		if err != nil {
			fail(err)
		}

		out := name
		if extract {
			if data, err = remote.DecompressDiff(data); err != nil {
				fail(err)
			}
			out = strings.TrimSuffix(out, ".zst")
		}
		if err := os.WriteFile(out, data, 0600); err != nil {
			fail(err)
		}
		fmt.Println(i18n.T("fetch_backup.saved", out))
	},
}

// historyCmd lists recorded deploys.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded deploys",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		copyHash, _ := cmd.Flags().GetBool("copy")

		if copyHash {
			rec, err := db.LatestSuccessfulDeploy()
			if err != nil {
				fail(err)
			}
			if rec == nil {
				fmt.Println(i18n.T("history.none_success"))
				os.Exit(1)
			}
			if err := clipboard.WriteAll(rec.CommitHash); err != nil {
				fail(err)
			}
			fmt.Println(i18n.T("history.copied", rec.CommitHash))
			return
		}

		recs, err := db.RecentDeploys(limit)
		if err != nil {
			fail(err)
		}
		if len(recs) == 0 {
			fmt.Println(i18n.T("history.empty"))
			return
		}
		for _, r := range recs {
			hash := r.CommitHash
			if len(hash) > 8 {
				hash = hash[:8]
			}
			fmt.Printf("%s  %-12s %-8s %-22s %s\n",
				r.Timestamp.Local().Format("2006-01-02 15:04"),
				r.Scenario, hash, r.Host, r.Result)
		}
	},
}

// trustHostCmd pins the Pi's SSH host key after showing its fingerprint.
var trustHostCmd = &cobra.Command{
	Use:   "trust-host [host]",
	Short: "Pin the Pi's SSH host key",
	Long: `Connects to the host for the first time, retrieves its public key, and
prompts before pinning it in the database. All later connections verify
against the pinned key. With no argument the configured host is used.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		hostname := runCfg.Host
		if len(args) > 0 {
			hostname = args[0]
		}
		if strings.Contains(hostname, "@") {
			parts := strings.SplitN(hostname, "@", 2)
			hostname = parts[1]
		}

		fmt.Println(i18n.T("trust_host.retrieving_key", hostname))
		key, err := sshexec.FetchHostKey(hostname)
		if err != nil {
			fail(errors.New(i18n.T("trust_host.error_get_key", err)))
		}

		fingerprint := ssh.FingerprintSHA256(key)
		fmt.Printf("\n"+i18n.T("trust_host.authenticity_warning_1")+"\n", hostname)
		fmt.Printf(i18n.T("trust_host.authenticity_warning_2")+"\n", key.Type(), fingerprint)

		answer := promptForConfirmation(i18n.T("trust_host.confirm_prompt"))
		if answer != "yes" {
			fmt.Println(i18n.T("trust_host.not_trusted_abort"))
			os.Exit(1)
		}

		keyStr := string(ssh.MarshalAuthorizedKey(key))
		if err := db.SetKnownHostKey(hostname, keyStr); err != nil {
			fail(errors.New(i18n.T("trust_host.error_save_key", err)))
		}

		fmt.Println(i18n.T("trust_host.added_success", hostname, key.Type()))
	},
}

// configInitCmd writes a config file with the current (default or
// overridden) values, making the configuration discoverable.
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a mouseye.yaml config file with the current values",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		system, _ := cmd.Flags().GetBool("system")
		cfg := runCfg
		path, err := config.WriteConfigFile(&cfg, system)
		if err != nil {
			fail(err)
		}
		fmt.Println(i18n.T("init.config_written", path))
	},
}

func init() {
	fetchBackupCmd.Flags().Bool("extract", false, "decompress the backup after downloading")
	historyCmd.Flags().IntP("limit", "n", 10, "number of deploys to list")
	historyCmd.Flags().Bool("copy", false, "copy the last successfully deployed commit hash to the clipboard")
	configInitCmd.Flags().Bool("system", false, "write to the system-wide location instead of the user config dir")
}

// promptForConfirmation reads one line from stdin after printing prompt.
func promptForConfirmation(prompt string) string {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(answer))
}
