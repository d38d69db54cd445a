package main

import (
	"github.com/spf13/cobra"

	"github.com/seoplan/planner/modules/planimport/domain/field"
	"github.com/seoplan/planner/modules/planimport/domain/record"
	"github.com/seoplan/planner/modules/planimport/services"
)

func newEditCmd(a *app) *cobra.Command {
	var (
		recordID int64
		sets     []string
		only     []int64
		scope    []int64
	)

	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Change fields of every member of a grouped record",
		RunE: func(cmd *cobra.Command, args []string) error {
			edits, err := services.ParseOverrides(sets)
			if err != nil {
				return withCode(exitUsage, err)
			}
			m, err := a.open()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var resolver *services.EntityResolver
			if _, ok := edits[field.Author]; ok {
				if resolver, err = services.LoadEntityResolver(ctx, m.Client); err != nil {
					return classify(err)
				}
			}
			change, err := services.EditFunc(field.ContentPlanSchema, edits, resolver)
			if err != nil {
				return withCode(exitUsage, err)
			}

			g, err := m.Bulk.FindGroup(ctx, toTargets(scope), record.ID(recordID))
			if err != nil {
				return classify(err)
			}
			rep, err := m.Bulk.Edit(ctx, g, toTargets(only), change)
			if werr := writeJSONLine(cmd.OutOrStdout(), reportLine{Event: "edit", Report: rep}); werr != nil {
				return werr
			}
			return classify(err)
		},
	}

	cmd.Flags().Int64Var(&recordID, "record", 0, "Id of any record of the group (required)")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "field=value, repeatable; field= clears the field (required)")
	cmd.Flags().Int64SliceVar(&only, "only", nil, "Restrict the edit to these projects")
	cmd.Flags().Int64SliceVar(&scope, "scope", nil, "Projects whose records form the groups (default: all)")
	_ = cmd.MarkFlagRequired("record")
	_ = cmd.MarkFlagRequired("set")
	return cmd
}
