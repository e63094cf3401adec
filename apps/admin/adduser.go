package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/classnote/classnote/core"
	"github.com/classnote/classnote/core/user"
)

type addUserArgs struct {
	name    string
	email   string
	uname   string
	roles   []string
	isAdmin bool
}

func (cli *commandLine) addUserCmd() *cobra.Command {
	var args addUserArgs

	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create a user, or update the password, roles and activation of an existing one. The password is prompted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, role := range args.roles {
				if !isKnownRole(role) {
					return fmt.Errorf("unknown role %q", role)
				}
			}
			pwd, err := cli.readPassword()
			if err != nil {
				return err
			}
			return cli.addUser(cmd.Context(), args, pwd)
		},
	}
	cmd.Flags().StringVar(&args.name, "name", "", "the user's full name")
	cmd.Flags().StringVarP(&args.email, "email", "e", "", "the user's email")
	cmd.Flags().StringVarP(&args.uname, "username", "u", "", "the user's username")
	cmd.Flags().StringSliceVar(&args.roles, "role", nil, "a role to grant (repeatable)")
	cmd.Flags().BoolVar(&args.isAdmin, "admin", false, "grant every admin role")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// addUser updates or creates a user.User
func (cli *commandLine) addUser(ctx context.Context, args addUserArgs, pwd string) error {
	email := core.CleanString(args.email, true /* lower */)
	roles := append([]string{}, args.roles...)
	if args.isAdmin {
		roles = append(roles, user.AdminRoles...)
	}

	usr, err := cli.usrSvc.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if args.name != "" {
			usr.Name = core.CleanString(args.name)
		}
		if len(roles) > 0 {
			usr.Roles = roles
		}
		usr.IsActive = true
		if err = usr.SetPassword(pwd); err != nil {
			return errors.Wrap(err, "setting password")
		}
		if _, err = cli.usrSvc.Save(ctx, usr); err != nil {
			return err
		}
		cli.printf("updated user %s\n", usr.Email)
		return nil

	case errors.Cause(err) == user.ErrNotFound:
		uname := core.CleanString(args.uname, true /* lower */)
		if err = cli.usrSvc.CheckUniqueness(ctx, uname, email); err != nil {
			return err
		}
		name := core.CleanString(args.name)
		if name == "" {
			name = email
		}
		usr, err = cli.usrSvc.Create(ctx, user.NewUser{
			Name:     name,
			Username: uname,
			Email:    email,
			Password: pwd,
			Roles:    roles,
		})
		if err != nil {
			return err
		}
		cli.printf("created user %s\n", usr.Email)
		return nil

	default:
		return err
	}
}

func isKnownRole(role string) bool {
	for _, r := range user.AllRoles {
		if r == role {
			return true
		}
	}
	return false
}
