package main

import (
	"context"
	"errors"

	"github.com/desertthunder/subsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// SyncRun admits a "refresh all subscriptions" request for a user. Without a
// broker configured the whole job runs synchronously before this returns.
func (r *Runner) SyncRun(ctx context.Context, cmd *cli.Command) error {
	r.reloadConfig(cmd.String("config"))
	userID := cmd.String("user")

	d, err := r.openDeps()
	if err != nil {
		return err
	}
	defer d.close()

	result, err := d.admission.InitiateSync(ctx, userID)
	if err != nil {
		var rateLimited *shared.RateLimitedError
		if errors.As(err, &rateLimited) {
			r.writePlainln("%s", styles.warn.Render(rateLimited.Error()))
			return nil
		}
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, cmd.Bool("pretty"))
	}

	if result.Existing {
		r.writePlainln("Sync already in flight: job %s (%d subscriptions)", result.JobID, result.Total)
	} else {
		r.writePlainln("Sync started: job %s (%d subscriptions)", result.JobID, result.Total)
	}
	r.writePlain("%s\n", styles.help.Render("subsync sync status --id "+result.JobID))
	return nil
}

// SyncStatus shows the progress of one job.
func (r *Runner) SyncStatus(ctx context.Context, cmd *cli.Command) error {
	r.reloadConfig(cmd.String("config"))
	jobID := cmd.String("id")

	d, err := r.openDeps()
	if err != nil {
		return err
	}
	defer d.close()

	status, err := d.tracker.JobStatus(ctx, jobID)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(status, cmd.Bool("pretty"))
	}
	return r.writePlain("%s", renderJobStatus(status))
}

// SyncActive shows a user's in-flight job, if one exists.
func (r *Runner) SyncActive(ctx context.Context, cmd *cli.Command) error {
	r.reloadConfig(cmd.String("config"))
	userID := cmd.String("user")

	d, err := r.openDeps()
	if err != nil {
		return err
	}
	defer d.close()

	active, err := d.tracker.ActiveJob(ctx, userID)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(active, false)
	}

	if !active.InProgress {
		r.writePlainln("No sync in progress for %s", userID)
		return nil
	}
	return r.writePlainln("Job %s: %d/%d (%s)",
		*active.JobID, active.Progress.Completed, active.Progress.Total, active.Progress.Status)
}
