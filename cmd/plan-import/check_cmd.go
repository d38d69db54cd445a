package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seoplan/planner/modules/planimport/services"
)

func newCheckCmd(a *app) *cobra.Command {
	var (
		targets []int64
		strict  bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report grouped records whose members diverge and keys stored twice in a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.open()
			if err != nil {
				return err
			}
			records, err := m.Records.ListRecords(cmd.Context(), toTargets(targets))
			if err != nil {
				return classify(err)
			}
			groups := services.Reconcile(records)
			divergent := services.Divergent(records)
			duplicates := services.DuplicateKeys(groups)

			out := cmd.OutOrStdout()
			for _, d := range divergent {
				if err := writeJSONLine(out, struct {
					Event string `json:"event"`
					services.Divergence
				}{"divergence", d}); err != nil {
					return err
				}
			}
			for _, d := range duplicates {
				if err := writeJSONLine(out, struct {
					Event string `json:"event"`
					services.DuplicateKey
				}{"duplicate_key", d}); err != nil {
					return err
				}
			}
			if err := writeJSONLine(out, map[string]any{
				"event":          "summary",
				"records":        len(records),
				"groups":         len(groups),
				"divergent":      len(divergent),
				"duplicate_keys": len(duplicates),
			}); err != nil {
				return err
			}
			if strict && len(divergent)+len(duplicates) > 0 {
				return withCode(exitValidation, fmt.Errorf("%d divergent records, %d duplicate keys", len(divergent), len(duplicates)))
			}
			return nil
		},
	}

	cmd.Flags().Int64SliceVar(&targets, "target", nil, "Project id, repeatable (default: all projects)")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit with a validation code when anything is reported")
	return cmd
}
