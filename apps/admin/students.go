package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/classnote/classnote/core"
	"github.com/classnote/classnote/core/user"
)

var errNoTeacher = errors.New("either --teacher or --all is required")

func (cli *commandLine) matchStudentsCmd() *cobra.Command {
	var (
		email string
		all   bool
	)

	cmd := &cobra.Command{
		Use:   "matchstudents",
		Short: "Link roster entries to the student accounts having the same name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			var teachers []user.User
			switch {
			case email != "":
				teacher, err := cli.usrSvc.GetByEmail(ctx, email)
				if err != nil {
					return err
				}
				teachers = append(teachers, teacher)
			case all:
				var err error
				teachers, err = cli.usrSvc.Query(
					ctx,
					user.QueryFilter{Roles: []string{user.RoleTeacher}},
					core.DBOrdering{Field: "email", Ascending: true},
				)
				if err != nil {
					return err
				}
			default:
				return errNoTeacher
			}

			for _, teacher := range teachers {
				if err := cli.matchStudents(ctx, teacher); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "teacher", "t", "", "the teacher's email")
	cmd.Flags().BoolVar(&all, "all", false, "match the rosters of every teacher")
	return cmd
}

func (cli *commandLine) matchStudents(ctx context.Context, teacher user.User) error {
	res, err := cli.stdSvc.MatchAccounts(ctx, teacher.ID)
	if err != nil {
		return err
	}
	for _, dup := range res.Duplicates {
		cli.printf("%s: %d accounts named %q %v\n", teacher.Email, len(dup.Accounts), dup.Student.Name, dup.Accounts)
	}
	for _, st := range res.NotFound {
		cli.printf("%s: no account named %q\n", teacher.Email, st.Name)
	}
	cli.printf("%s: %d matched, %d duplicates, %d not found\n",
		teacher.Email, res.Matched, len(res.Duplicates), len(res.NotFound))
	return nil
}
