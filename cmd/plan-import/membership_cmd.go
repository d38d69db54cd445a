package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/seoplan/planner/modules/planimport/domain/record"
	"github.com/seoplan/planner/modules/planimport/services"
)

type membershipOptions struct {
	recordID int64
	targets  []int64
	scope    []int64
}

func newMembershipCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "membership",
		Short: "Add or remove projects from a grouped record",
	}
	cmd.AddCommand(newMembershipChangeCmd(a, "add", "Create the group's sample in more projects",
		func(ctx context.Context, b *services.BulkService, g *record.Group, t []record.TargetID) (services.MembershipPlan, services.Report, error) {
			return b.AddTargets(ctx, g, t)
		}))
	cmd.AddCommand(newMembershipChangeCmd(a, "remove", "Delete the group's record in the given projects",
		func(ctx context.Context, b *services.BulkService, g *record.Group, t []record.TargetID) (services.MembershipPlan, services.Report, error) {
			return b.RemoveTargets(ctx, g, t)
		}))
	return cmd
}

type membershipChange func(context.Context, *services.BulkService, *record.Group, []record.TargetID) (services.MembershipPlan, services.Report, error)

func newMembershipChangeCmd(a *app, use, short string, change membershipChange) *cobra.Command {
	var opts membershipOptions

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.open()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			g, err := m.Bulk.FindGroup(ctx, toTargets(opts.scope), record.ID(opts.recordID))
			if err != nil {
				return classify(err)
			}
			plan, rep, err := change(ctx, m.Bulk, g, toTargets(opts.targets))
			if werr := writeJSONLine(cmd.OutOrStdout(), reportLine{Event: "membership_" + use, Report: rep, Plan: plan}); werr != nil {
				return werr
			}
			return classify(err)
		},
	}

	cmd.Flags().Int64Var(&opts.recordID, "record", 0, "Id of any record of the group (required)")
	cmd.Flags().Int64SliceVar(&opts.targets, "target", nil, "Project id, repeatable (required)")
	cmd.Flags().Int64SliceVar(&opts.scope, "scope", nil, "Projects whose records form the groups (default: all)")
	_ = cmd.MarkFlagRequired("record")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}
