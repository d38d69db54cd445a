package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seoplan/planner/modules/planimport"
	"github.com/seoplan/planner/pkg/configuration"
	"github.com/seoplan/planner/pkg/metrics"
)

// app holds what every subcommand shares: configuration and the wired module. Both are
// built on first use so that --help and flag errors never touch the environment.
type app struct {
	envFiles    []string
	backendURL  string
	token       string
	metricsFile string

	conf   *configuration.Configuration
	module *planimport.Module
}

func (a *app) open() (*planimport.Module, error) {
	if a.module != nil {
		return a.module, nil
	}
	conf, err := configuration.New(a.envFiles)
	if err != nil {
		return nil, withCode(exitUsage, err)
	}
	if v := strings.TrimSpace(a.backendURL); v != "" {
		conf.Backend.URL = v
	}
	if v := strings.TrimSpace(a.token); v != "" {
		conf.Backend.Token = v
	}
	if err := conf.Backend.Validate(); err != nil {
		conf.Unload()
		return nil, withCode(exitUsage, err)
	}
	m, err := planimport.NewModule(planimport.OptionsFromConfiguration(conf))
	if err != nil {
		conf.Unload()
		return nil, withCode(exitUsage, err)
	}
	a.conf = conf
	a.module = m
	return m, nil
}

func (a *app) close() {
	if a.module != nil {
		a.module.Close()
	}
	if a.conf != nil {
		a.conf.Unload()
	}
}

// flushMetrics writes the default registry in text exposition format when a metrics file
// is configured.
func (a *app) flushMetrics() error {
	path := a.metricsFile
	if path == "" && a.conf != nil && a.conf.Prometheus.Enabled {
		path = "plan-import.prom"
	}
	if path == "" {
		return nil
	}
	if err := metrics.WriteTextfile(path, nil); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "plan-import",
		Short:         "Bulk import and reconciliation of SEO content plans",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.flushMetrics()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringSliceVar(&a.envFiles, "env-file", []string{".env", ".env.local"}, "Env files to load (missing ones are skipped)")
	flags.StringVar(&a.backendURL, "backend-url", "", "Backend base URL (overrides PLANNER_BACKEND_URL)")
	flags.StringVar(&a.token, "token", "", "API token (overrides PLANNER_API_TOKEN)")
	flags.StringVar(&a.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file after the command")

	cmd.AddCommand(newImportCmd(a))
	cmd.AddCommand(newRetryCmd(a))
	cmd.AddCommand(newGroupsCmd(a))
	cmd.AddCommand(newMembershipCmd(a))
	cmd.AddCommand(newEditCmd(a))
	cmd.AddCommand(newDeleteCmd(a))
	cmd.AddCommand(newCheckCmd(a))
	return cmd
}

func Execute() {
	a := &app{}
	err := newRootCmd(a).Execute()
	a.close()
	if err != nil {
		code := exitCode(err)
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(code)
	}
}
