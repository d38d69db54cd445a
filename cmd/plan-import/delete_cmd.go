package main

import (
	"github.com/spf13/cobra"

	"github.com/seoplan/planner/modules/planimport/domain/record"
	"github.com/seoplan/planner/modules/planimport/services"
)

func newDeleteCmd(a *app) *cobra.Command {
	var (
		recordID int64
		only     []int64
		scope    []int64
		yes      bool
	)

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a grouped record from all (or some) of its projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.open()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			g, err := m.Bulk.FindGroup(ctx, toTargets(scope), record.ID(recordID))
			if err != nil {
				return classify(err)
			}

			targets := toTargets(only)
			if len(targets) == 0 {
				targets = g.Targets()
			}
			line := struct {
				Event   string      `json:"event"`
				Applied bool        `json:"applied"`
				IDs     []record.ID `json:"ids"`
			}{Event: "delete", IDs: services.Expand(g, targets)}
			if yes {
				ids, err := m.Bulk.Delete(ctx, g, targets)
				if err != nil {
					return classify(err)
				}
				line.Applied, line.IDs = true, ids
			}
			return writeJSONLine(cmd.OutOrStdout(), line)
		},
	}

	cmd.Flags().Int64Var(&recordID, "record", 0, "Id of any record of the group (required)")
	cmd.Flags().Int64SliceVar(&only, "only", nil, "Delete only in these projects")
	cmd.Flags().Int64SliceVar(&scope, "scope", nil, "Projects whose records form the groups (default: all)")
	cmd.Flags().BoolVar(&yes, "yes", false, "Apply the deletion (default only prints the record ids)")
	_ = cmd.MarkFlagRequired("record")
	return cmd
}
