package main

import (
	"strings"

	"github.com/spf13/cobra"
)

func (cli *commandLine) checkTreeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checktree",
		Short: "Print the prompt category tree and report its inconsistencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			tree, err := cli.promptSvc.Tree(ctx)
			if err != nil {
				return err
			}
			for _, node := range tree {
				cli.printf("%s%s\n", strings.Repeat("  ", node.Depth), node.Name)
			}

			diag, err := cli.promptSvc.Diagnose(ctx)
			if err != nil {
				return err
			}
			cli.printf("\nroots: %s\n", strings.Join(diag.Roots, ", "))
			for _, line := range diag.Categories {
				parent := line.ParentName
				if parent == "" {
					parent = "-"
				}
				cli.printf("%s (parent: %s, templates: %d)\n", line.Name, parent, line.Templates)
			}
			for _, warning := range diag.Warnings {
				cli.printf("warning: %s\n", warning)
			}
			return nil
		},
	}
}
