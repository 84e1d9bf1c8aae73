package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/isdmx/coderun/config"
	"github.com/isdmx/coderun/language"
)

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List registered languages",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		registry, err := language.NewFromConfig(cfg)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tDISPLAY\tVERSION\tKIND\tSOURCE")
		for _, p := range registry.Profiles() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.Name, p.DisplayName, p.Version, p.Kind, p.SourceFile)
		}
		return w.Flush()
	},
}
