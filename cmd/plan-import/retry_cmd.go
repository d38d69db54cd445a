package main

import (
	"github.com/spf13/cobra"
)

func newRetryCmd(a *app) *cobra.Command {
	var (
		path    string
		perItem bool
		decline bool
	)

	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Decide on a saved partially accepted batch: resubmit to the accepted projects or decline",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := loadBatch(path)
			if err != nil {
				return classify(err)
			}
			out := cmd.OutOrStdout()
			if decline {
				m, err := a.open()
				if err != nil {
					return err
				}
				if err := m.Executor.Decline(b); err != nil {
					return classify(err)
				}
				return writeJSONLine(out, newOutcomeLine("declined", b))
			}
			return classify(retryBatch(cmd.Context(), out, a, b, perItem))
		},
	}

	cmd.Flags().StringVar(&path, "batch", "", "Batch file written by import --save-partial (required)")
	cmd.Flags().BoolVar(&perItem, "per-item", false, "Resubmit item by item through POST /records")
	cmd.Flags().BoolVar(&decline, "decline", false, "Abandon the batch instead of resubmitting")
	cmd.MarkFlagsMutuallyExclusive("per-item", "decline")
	_ = cmd.MarkFlagRequired("batch")
	return cmd
}
