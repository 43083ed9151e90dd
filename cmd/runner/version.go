package main

import (
	"fmt"

	"github.com/ncobase/runner/version"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newVersionCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "version",
		Args:  cobra.NoArgs,
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.GetVersionInfo()
			out := cmd.OutOrStdout()
			switch output {
			case formatJSON:
				s, err := info.JSON()
				if err != nil {
					return err
				}
				fmt.Fprintln(out, s)
			case formatYAML:
				b, err := yaml.Marshal(info)
				if err != nil {
					return err
				}
				fmt.Fprint(out, string(b))
			default:
				fmt.Fprintln(out, info.String())
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output format: json or yaml")
	return cmd
}
