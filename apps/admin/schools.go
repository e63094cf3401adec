package main

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func (cli *commandLine) importSchoolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "importschools FILE",
		Short: "Import the NEIS school list (xlsx or csv with 교육청, 학교명 and 나이스 학교코드 columns)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return errors.Wrap(err, "opening school list")
			}
			defer f.Close()

			table, err := cli.codec.ReadTable(filepath.Base(args[0]), f)
			if err != nil {
				return err
			}
			res, err := cli.schSvc.Import(cmd.Context(), table)
			if err != nil {
				return err
			}
			for _, rowErr := range res.Errors {
				cli.printf("line %d: %s\n", rowErr.Line, rowErr.Reason)
			}
			cli.printf("%d schools created, %d already known, %d rows rejected\n", res.Created, res.Skipped, len(res.Errors))
			return nil
		},
	}
}

func (cli *commandLine) initSubjectsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "initsubjects",
		Short: "Create the subject catalog and normalize the subjects of the users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := cli.schSvc.InitSubjects(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range res.Created {
				cli.printf("created subject %s\n", name)
			}
			for _, unknown := range res.Unknown {
				cli.printf("unknown subject %q for %s\n", unknown.Subject, unknown.Email)
			}
			cli.printf("%d subjects created, %d users normalized, %d unknown subjects\n",
				len(res.Created), res.Normalized, len(res.Unknown))
			return nil
		},
	}
}
