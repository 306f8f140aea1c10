package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/subsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// DLQList prints captured dead-letter entries, most recent first.
func (r *Runner) DLQList(ctx context.Context, cmd *cli.Command) error {
	r.reloadConfig(cmd.String("config"))

	d, err := r.openDeps()
	if err != nil {
		return err
	}
	defer d.close()

	entries, err := d.dlq.ListEntries(ctx, int(cmd.Int("limit")))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(entries, true)
	}

	if len(entries) == 0 {
		r.writePlainln("Dead-letter queue is empty")
		return nil
	}
	return r.writePlain("%s", renderDLQEntries(entries))
}

// DLQSummary prints the dead-letter overview.
func (r *Runner) DLQSummary(ctx context.Context, cmd *cli.Command) error {
	r.reloadConfig(cmd.String("config"))

	d, err := r.openDeps()
	if err != nil {
		return err
	}
	defer d.close()

	summary, err := d.dlq.Summary(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(summary, true)
	}
	return r.writePlain("%s", renderDLQSummary(summary))
}

// DLQDelete removes one captured entry by id.
func (r *Runner) DLQDelete(ctx context.Context, cmd *cli.Command) error {
	r.reloadConfig(cmd.String("config"))

	entryID := cmd.StringArg("id")
	if entryID == "" {
		return fmt.Errorf("%w: entry id", shared.ErrMissingArgument)
	}

	d, err := r.openDeps()
	if err != nil {
		return err
	}
	defer d.close()

	existed, err := d.dlq.DeleteEntry(ctx, entryID)
	if err != nil {
		return err
	}
	if !existed {
		r.writePlainln("%s", styles.warn.Render("Entry not found: "+entryID))
		return nil
	}
	r.writePlainln("%s", styles.ok.Render("Deleted "+entryID))
	return nil
}
