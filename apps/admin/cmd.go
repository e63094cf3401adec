package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/classnote/classnote/core"
	"github.com/classnote/classnote/core/prompt"
	"github.com/classnote/classnote/core/school"
	"github.com/classnote/classnote/core/student"
	"github.com/classnote/classnote/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errEmptyPassword = errors.New("the password cannot be empty")
)

type commandLine struct {
	db        *sqlx.DB
	out       io.Writer
	codec     core.SpreadsheetCodec
	usrSvc    user.Service
	schSvc    school.Service
	stdSvc    student.Service
	promptSvc prompt.Service
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "ClassNote administration commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(cli.out)
	root.SetErr(cli.out)

	root.AddCommand(
		cli.migrateCmd(),
		cli.resetPasswordCmd(),
		cli.addUserCmd(),
		cli.importSchoolsCmd(),
		cli.initSubjectsCmd(),
		cli.matchStudentsCmd(),
		cli.checkTreeCmd(),
	)
	return root
}

// run executes the command line; args[0] is the program name.
func (cli *commandLine) run(args []string) error {
	root := cli.rootCmd()
	root.SetArgs(args[1:])
	return root.ExecuteContext(context.Background())
}

func (cli *commandLine) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(cli.out, format, args...)
}

func (cli *commandLine) readPassword() (string, error) {
	cli.printf("Enter password:")
	pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
	cli.printf("\n")
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		return "", errEmptyPassword
	}
	return string(pwd), nil
}
