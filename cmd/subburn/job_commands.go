package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"subburn/internal/jobs"
	"subburn/internal/jobstore"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Show a job and its steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := fetchJob(cmd, ctx, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, job)
			}
			printJob(cmd.OutOrStdout(), job)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the job as JSON")
	return cmd
}

func fetchJob(cmd *cobra.Command, ctx *commandContext, id string) (*jobs.Job, error) {
	client, ok, err := ctx.dialClient()
	if err != nil {
		return nil, err
	}
	if ok {
		defer client.Close()
		return client.Status(commandCtx(cmd), id)
	}
	var job *jobs.Job
	err = ctx.withStore(func(store jobstore.Store) error {
		job, err = store.Get(commandCtx(cmd), id)
		return err
	})
	return job, err
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var owner string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := listJobs(cmd, ctx, owner)
			if err != nil {
				return err
			}
			if asJSON {
				if list == nil {
					list = []*jobs.Job{}
				}
				return writeJSON(cmd, list)
			}
			printJobList(cmd.OutOrStdout(), list)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Only show jobs submitted by this owner")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print jobs as JSON")
	return cmd
}

func listJobs(cmd *cobra.Command, ctx *commandContext, owner string) ([]*jobs.Job, error) {
	client, ok, err := ctx.dialClient()
	if err != nil {
		return nil, err
	}
	if ok {
		defer client.Close()
		return client.List(commandCtx(cmd), owner)
	}
	var list []*jobs.Job
	err = ctx.withStore(func(store jobstore.Store) error {
		filter := jobstore.All()
		if owner != "" {
			filter = jobstore.ByOwner(owner)
		}
		list, err = jobstore.Collect(store.List(commandCtx(cmd), filter))
		return err
	})
	return list, err
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.requireClient()
			if err != nil {
				return err
			}
			defer client.Close()
			if err := client.Cancel(commandCtx(cmd), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for %s\n", args[0])
			return nil
		},
	}
}
