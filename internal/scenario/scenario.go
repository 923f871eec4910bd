// Copyright (c) 2025 dogwoodfire
// MouseEye - timelapse deploy orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

// package scenario composes the named pipelines mousectl exposes: deploy,
// deploy-force, and the individual steps they are built from. Every remote
// step dials its own connection and closes it when the step finishes; the
// connection is never reused across steps.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dogwoodfire/MouseEye/internal/config"
	"github.com/dogwoodfire/MouseEye/internal/db"
	"github.com/dogwoodfire/MouseEye/internal/gitx"
	"github.com/dogwoodfire/MouseEye/internal/i18n"
	"github.com/dogwoodfire/MouseEye/internal/logging"
	"github.com/dogwoodfire/MouseEye/internal/pipeline"
	"github.com/dogwoodfire/MouseEye/internal/remote"
)

// RemoteRunner is the slice of the SSH layer a scenario needs from one open
// connection.
type RemoteRunner interface {
	Run(cmd string) (string, error)
	Stream(cmd string, stdout, stderr io.Writer, done <-chan struct{}) error
	Hostname() (string, error)
	Put(remotePath string, data []byte) error
	Get(remotePath string) ([]byte, error)
	Close()
}

// Dialer opens a fresh connection for one remote step.
type Dialer func() (RemoteRunner, error)

// Git is the local version-control surface the pipelines use.
type Git interface {
	CommitAll(ctx context.Context, message string) error
	Push(ctx context.Context, branch string) error
	Head(ctx context.Context) (string, error)
}

// Orchestrator runs pipelines against one configured host. The configuration
// is fixed at construction and never re-read mid-run.
type Orchestrator struct {
	cfg   config.Config
	git   Git
	dial  Dialer
	store db.Store // nil disables history recording
	obs   pipeline.Observer
	now   func() time.Time
}

// New builds an Orchestrator. store may be nil when no history database is
// available; obs may be nil when nobody needs progress events.
func New(cfg config.Config, git Git, dial Dialer, store db.Store, obs pipeline.Observer) *Orchestrator {
	return &Orchestrator{
		cfg:   cfg,
		git:   git,
		dial:  dial,
		store: store,
		obs:   obs,
		now:   time.Now,
	}
}

// commitStep stages and commits all local changes. A clean working tree is a
// tolerated outcome, not a failure.
func (o *Orchestrator) commitStep() pipeline.Step {
	return pipeline.Step{
		Name: "commit",
		Site: pipeline.SiteLocal,
		Run: func(ctx context.Context) error {
			return o.git.CommitAll(ctx, o.cfg.Message)
		},
		Tolerate: func(err error) bool {
			return errors.Is(err, gitx.ErrNothingToCommit)
		},
	}
}

// pushStep pushes the configured branch to origin.
func (o *Orchestrator) pushStep() pipeline.Step {
	return pipeline.Step{
		Name: "push",
		Site: pipeline.SiteLocal,
		Run: func(ctx context.Context) error {
			return o.git.Push(ctx, o.cfg.Branch)
		},
	}
}

// pullStep fast-forwards the remote checkout. Its sub-commands run as
// discrete invocations; the first failure aborts the step.
func (o *Orchestrator) pullStep() pipeline.Step {
	return pipeline.Step{
		Name: "pi-pull",
		Site: pipeline.SiteRemote,
		Run: func(ctx context.Context) error {
			r, err := o.dial()
			if err != nil {
				return err
			}
			defer r.Close()

			for _, sub := range remote.PullCommands(o.cfg.RemoteDir, o.cfg.Branch) {
				if _, err := r.Run(sub.Cmd); err != nil {
					return fmt.Errorf("%s: %w", sub.Name, err)
				}
			}
			return nil
		},
	}
}

// pullHardStep discards the remote working tree after a best-effort backup of
// its uncommitted changes. Fetch and reset abort the step; a failed backup
// only logs a warning.
func (o *Orchestrator) pullHardStep() pipeline.Step {
	return pipeline.Step{
		Name: "pi-pull-hard",
		Site: pipeline.SiteRemote,
		Run: func(ctx context.Context) error {
			r, err := o.dial()
			if err != nil {
				return err
			}
			defer r.Close()

			fetch := remote.FetchCommand(o.cfg.RemoteDir)
			if _, err := r.Run(fetch.Cmd); err != nil {
				return fmt.Errorf("%s: %w", fetch.Name, err)
			}

			if path, err := o.backupRemoteDiff(r); err != nil {
				logging.Warnf("%s", i18n.T("pull_hard.backup_failed", err))
			} else if path != "" {
				logging.Infof("%s", i18n.T("pull_hard.backup_written", path))
			}

			reset := remote.HardResetCommand(o.cfg.RemoteDir, o.cfg.Branch)
			if _, err := r.Run(reset.Cmd); err != nil {
				return fmt.Errorf("%s: %w", reset.Name, err)
			}
			return nil
		},
	}
}

// backupRemoteDiff captures the remote checkout's uncommitted changes and
// writes them, zstd-compressed, to a timestamped file under the checkout.
// The filename uses the hostname the remote reports, not shell interpolation.
// It returns the remote path written, or "" when the tree was clean.
func (o *Orchestrator) backupRemoteDiff(r RemoteRunner) (string, error) {
	diffCmd := remote.DiffCommand(o.cfg.RemoteDir)
	diff, err := r.Run(diffCmd.Cmd)
	if err != nil {
		return "", fmt.Errorf("capture diff: %w", err)
	}
	if strings.TrimSpace(diff) == "" {
		logging.Debugf("remote tree is clean, skipping backup")
		return "", nil
	}

	hostname, err := r.Hostname()
	if err != nil {
		return "", fmt.Errorf("resolve remote hostname: %w", err)
	}

	packed, err := remote.CompressDiff([]byte(diff))
	if err != nil {
		return "", err
	}

	path := remote.BackupPath(o.cfg.RemoteDir, remote.BackupName(hostname, o.now()))
	if err := r.Put(path, packed); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}
	return path, nil
}

// restartStep restarts the service on the remote host.
func (o *Orchestrator) restartStep() pipeline.Step {
	return pipeline.Step{
		Name: "pi-restart",
		Site: pipeline.SiteRemote,
		Run: func(ctx context.Context) error {
			r, err := o.dial()
			if err != nil {
				return err
			}
			defer r.Close()

			if _, err := r.Run(remote.RestartCommand(o.cfg.Service)); err != nil {
				return err
			}
			return nil
		},
	}
}

// Deploy runs commit → push → pi-pull → pi-restart and records the outcome.
func (o *Orchestrator) Deploy(ctx context.Context) error {
	return o.runScenario(ctx, "deploy", []pipeline.Step{
		o.commitStep(),
		o.pushStep(),
		o.pullStep(),
		o.restartStep(),
	})
}

// DeployForce runs commit → push → pi-pull-hard → pi-restart, discarding any
// uncommitted remote changes after the best-effort backup.
func (o *Orchestrator) DeployForce(ctx context.Context) error {
	return o.runScenario(ctx, "deploy-force", []pipeline.Step{
		o.commitStep(),
		o.pushStep(),
		o.pullHardStep(),
		o.restartStep(),
	})
}

// Commit, Push, Pull, PullHard and Restart expose the individual steps as
// single-step pipelines so their output and history handling match the
// composite scenarios.

func (o *Orchestrator) Commit(ctx context.Context) error {
	return o.runScenario(ctx, "commit", []pipeline.Step{o.commitStep()})
}

func (o *Orchestrator) Push(ctx context.Context) error {
	return o.runScenario(ctx, "push", []pipeline.Step{o.pushStep()})
}

func (o *Orchestrator) Pull(ctx context.Context) error {
	return o.runScenario(ctx, "pi-pull", []pipeline.Step{o.pullStep()})
}

func (o *Orchestrator) PullHard(ctx context.Context) error {
	return o.runScenario(ctx, "pi-pull-hard", []pipeline.Step{o.pullHardStep()})
}

func (o *Orchestrator) Restart(ctx context.Context) error {
	return o.runScenario(ctx, "pi-restart", []pipeline.Step{o.restartStep()})
}

// runScenario executes the steps and appends a history row when a store is
// configured. History failures never mask the pipeline result.
func (o *Orchestrator) runScenario(ctx context.Context, name string, steps []pipeline.Step) error {
	p := pipeline.Pipeline{Name: name, Steps: steps}
	runErr := p.Run(ctx, o.obs)

	if o.store != nil {
		rec := &db.DeployRecord{
			Timestamp: o.now().UTC(),
			Scenario:  name,
			Host:      o.cfg.Host,
			Branch:    o.cfg.Branch,
			Result:    "success",
		}
		if runErr != nil {
			rec.Result = "failed: " + runErr.Error()
		}
		if head, err := o.git.Head(ctx); err == nil {
			rec.CommitHash = head
		}
		if err := o.store.AddDeploy(rec); err != nil {
			logging.Warnf("%s", i18n.T("history.record_failed", err))
		}
	}

	return runErr
}

// Status returns the full service status as reported by the remote host.
// It is report-only and never recorded in history.
func (o *Orchestrator) Status(ctx context.Context) (string, error) {
	r, err := o.dial()
	if err != nil {
		return "", err
	}
	defer r.Close()

	return r.Run(remote.StatusCommand(o.cfg.Service))
}

// Logs streams the service journal to the given writers until the done
// channel closes (user interrupt). It has no timeout of its own.
func (o *Orchestrator) Logs(stdout, stderr io.Writer, done <-chan struct{}) error {
	r, err := o.dial()
	if err != nil {
		return err
	}
	defer r.Close()

	return r.Stream(remote.LogsCommand(o.cfg.Service), stdout, stderr, done)
}

// FetchBackup downloads a named hard-pull backup from the remote backup
// directory and returns its raw (still compressed) content.
func (o *Orchestrator) FetchBackup(name string) ([]byte, error) {
	r, err := o.dial()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return r.Get(remote.BackupPath(o.cfg.RemoteDir, name))
}
