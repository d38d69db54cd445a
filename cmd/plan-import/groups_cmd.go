package main

import (
	"github.com/spf13/cobra"

	"github.com/seoplan/planner/modules/planimport/domain/item"
	"github.com/seoplan/planner/modules/planimport/domain/record"
)

type groupLine struct {
	Event   string                        `json:"event"`
	Key     record.GroupKey               `json:"key"`
	Sample  item.Fields                   `json:"sample"`
	Members map[record.TargetID]record.ID `json:"members"`
	Targets []record.TargetID             `json:"targets"`
}

func newGroupLine(g *record.Group) groupLine {
	return groupLine{Event: "group", Key: g.Key, Sample: g.Sample, Members: g.Members, Targets: g.Targets()}
}

func newGroupsCmd(a *app) *cobra.Command {
	var targets []int64

	cmd := &cobra.Command{
		Use:   "groups",
		Short: "List records of the given projects grouped by (topic, period, section, direction)",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.open()
			if err != nil {
				return err
			}
			groups, err := m.Bulk.Groups(cmd.Context(), toTargets(targets))
			if err != nil {
				return classify(err)
			}
			for _, g := range groups {
				if err := writeJSONLine(cmd.OutOrStdout(), newGroupLine(g)); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().Int64SliceVar(&targets, "target", nil, "Project id, repeatable (default: all projects)")
	return cmd
}
