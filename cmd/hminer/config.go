package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after merging config files and HMINER_* environment
variables, as YAML. The output can be saved as a config file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		m := newManager()
		if err := m.Load(); err != nil {
			return err
		}
		out, err := m.Marshal()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	},
}
