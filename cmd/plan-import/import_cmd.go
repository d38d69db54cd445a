package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"

	"github.com/seoplan/planner/modules/planimport/domain/field"
	"github.com/seoplan/planner/modules/planimport/domain/item"
	"github.com/seoplan/planner/modules/planimport/domain/outcome"
	"github.com/seoplan/planner/modules/planimport/domain/record"
	"github.com/seoplan/planner/modules/planimport/services"
	"github.com/seoplan/planner/pkg/tabular"
)

type importOptions struct {
	kind      string
	file      string
	delimiter string
	targets   []int64
	mappings  []string

	defaultDirection string
	defaultSection   string
	defaultPeriod    string

	applyDefaultsLocally bool
	dryRun               bool
	retryAccepted        bool
	perItem              bool
	savePartial          string

	defaults item.Defaults
}

func newImportCmd(a *app) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a CSV or XLSX file into one or more projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return classify(runImport(cmd.Context(), cmd.OutOrStdout(), a, opts))
		},
	}

	cmd.Flags().StringVar(&opts.kind, "kind", string(field.KindContentPlan), "Import kind: content_plan or query")
	cmd.Flags().StringVar(&opts.file, "file", "", "CSV or XLSX file (required)")
	cmd.Flags().StringVar(&opts.delimiter, "delimiter", "", "CSV delimiter (default: sniffed from the header line)")
	cmd.Flags().Int64SliceVar(&opts.targets, "target", nil, "Target project id, repeatable (required unless --dry-run)")
	cmd.Flags().StringArrayVar(&opts.mappings, "map", nil, "Manual mapping field=Header, repeatable; field= unmaps")
	cmd.Flags().StringVar(&opts.defaultDirection, "default-direction", "", "Batch default direction")
	cmd.Flags().StringVar(&opts.defaultSection, "default-section", "", "Batch default section")
	cmd.Flags().StringVar(&opts.defaultPeriod, "default-period", "", "Batch default period")
	cmd.Flags().BoolVar(&opts.applyDefaultsLocally, "apply-defaults-locally", false, "Fill empty fields from the defaults before validation")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Parse, map and coerce only; print items instead of submitting")
	cmd.Flags().BoolVar(&opts.retryAccepted, "retry-accepted", false, "On a partial answer, resubmit to the accepted projects right away")
	cmd.Flags().BoolVar(&opts.perItem, "per-item", false, "Resubmit item by item through POST /records (with --retry-accepted)")
	cmd.Flags().StringVar(&opts.savePartial, "save-partial", "", "On a partial answer, save the batch here for the retry command")

	_ = cmd.MarkFlagRequired("file")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if len(opts.targets) == 0 && !opts.dryRun {
			return withCode(exitUsage, errors.New("at least one --target is required"))
		}
		if opts.perItem && !opts.retryAccepted {
			return withCode(exitUsage, errors.New("--per-item needs --retry-accepted"))
		}
		if cmd.Flags().Changed("default-direction") {
			opts.defaults.Direction = &opts.defaultDirection
		}
		if cmd.Flags().Changed("default-section") {
			opts.defaults.Section = &opts.defaultSection
		}
		if cmd.Flags().Changed("default-period") {
			opts.defaults.Period = &opts.defaultPeriod
		}
		return nil
	}

	return cmd
}

func runImport(ctx context.Context, out io.Writer, a *app, opts importOptions) error {
	kind, err := field.ParseImportKind(strings.TrimSpace(opts.kind))
	if err != nil {
		return withCode(exitUsage, err)
	}
	overrides, err := services.ParseOverrides(opts.mappings)
	if err != nil {
		return withCode(exitUsage, err)
	}
	tableOpts := tabular.Options{}
	if d := []rune(opts.delimiter); len(d) == 1 {
		tableOpts.Comma = d[0]
	} else if opts.delimiter == `\t` {
		tableOpts.Comma = '\t'
	} else if opts.delimiter != "" {
		return withCode(exitUsage, fmt.Errorf("invalid --delimiter %q", opts.delimiter))
	}

	table, err := tabular.ParseFile(opts.file, tableOpts)
	if err != nil {
		return err
	}
	m, err := a.open()
	if err != nil {
		return err
	}

	prepared, err := m.Prepare(ctx, table, kind, services.PipelineOptions{
		Overrides:            overrides,
		Defaults:             opts.defaults,
		ApplyDefaultsLocally: opts.applyDefaultsLocally,
	})
	if prepared != nil {
		if werr := writeJSONLine(out, preparedLine{
			Event:   "prepared",
			File:    opts.file,
			Format:  string(table.Format),
			Mapping: prepared.Mapping,
			Stats:   prepared.Stats,
			Skipped: prepared.Skipped,
		}); werr != nil {
			return werr
		}
	}
	if err != nil {
		return err
	}

	if opts.dryRun {
		for _, it := range prepared.Items {
			if err := writeJSONLine(out, struct {
				Event string    `json:"event"`
				Line  int       `json:"line"`
				Item  item.Item `json:"item"`
			}{"item", it.Line, it}); err != nil {
				return err
			}
		}
		return nil
	}

	b, err := services.NewBatch(kind, prepared.Items, toTargets(opts.targets), opts.defaults)
	if err != nil {
		return err
	}
	_, submitErr := m.Executor.Submit(ctx, b)
	if err := writeJSONLine(out, newOutcomeLine("submitted", b)); err != nil {
		return err
	}
	if submitErr != nil {
		return submitErr
	}
	if b.State() != services.StateAwaitingRetryDecision {
		return nil
	}

	if opts.retryAccepted {
		return retryBatch(ctx, out, a, b, opts.perItem)
	}
	if opts.savePartial != "" {
		if err := saveBatch(opts.savePartial, b); err != nil {
			return err
		}
	}
	return withCode(exitPartial, fmt.Errorf("batch %s partially accepted; blocked targets %v",
		b.ID, b.Outcome().(outcome.PartiallyAccepted).BlockedTargets()))
}

// retryBatch resubmits a batch awaiting a retry decision to its accepted targets.
func retryBatch(ctx context.Context, out io.Writer, a *app, b *services.Batch, perItem bool) error {
	m, err := a.open()
	if err != nil {
		return err
	}
	if perItem {
		rep, err := m.Executor.RetryAcceptedPerItem(ctx, b, m.Client, m.Submitter)
		if werr := writeJSONLine(out, reportLine{Event: "per_item_retry", Report: rep}); werr != nil {
			return werr
		}
		if werr := writeJSONLine(out, newOutcomeLine("retried", b)); werr != nil {
			return werr
		}
		return err
	}
	_, err = m.Executor.RetryAccepted(ctx, b)
	if werr := writeJSONLine(out, newOutcomeLine("retried", b)); werr != nil {
		return werr
	}
	return err
}

func toTargets(ids []int64) []record.TargetID {
	out := make([]record.TargetID, len(ids))
	for i, id := range ids {
		out[i] = record.TargetID(id)
	}
	return out
}
