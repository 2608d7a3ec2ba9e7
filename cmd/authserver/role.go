package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	auth "github.com/goliatone/go-session-auth"
)

func newRoleCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Manage roles and memberships",
	}

	cmd.AddCommand(
		newRoleAddCmd(c),
		newRoleDeleteCmd(c),
		newRoleGrantCmd(c),
		newRoleRevokeCmd(c),
		newRoleListCmd(c),
		newRoleSetCmd(c),
	)
	return cmd
}

func newRoleAddCmd(c *cli) *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "add <role>",
		Short: "Create a role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStores(cmd.Context(), func(s *stores) error {
				created, err := s.authorization.AddRole(cmd.Context(), args[0], description)
				if err != nil {
					return err
				}
				report(cmd, created, "added role %s", "role %s already exists", args[0])
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "role description")
	return cmd
}

func newRoleDeleteCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <role>",
		Short: "Delete a role and its memberships",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStores(cmd.Context(), func(s *stores) error {
				deleted, err := s.authorization.DeleteRole(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !deleted {
					return auth.ErrRoleNotFound
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted role %s\n", args[0])
				return nil
			})
		},
	}
}

func newRoleGrantCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "grant <username> <role>",
		Short: "Grant a role to a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStores(cmd.Context(), func(s *stores) error {
				granted, err := s.authorization.Grant(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				report(cmd, granted, "granted %s", "already granted %s", args[1]+" to "+args[0])
				return nil
			})
		},
	}
}

func newRoleRevokeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <username> <role>",
		Short: "Revoke a role from a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStores(cmd.Context(), func(s *stores) error {
				revoked, err := s.authorization.Revoke(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				report(cmd, revoked, "revoked %s", "not granted %s", args[1]+" from "+args[0])
				return nil
			})
		},
	}
}

func newRoleListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list [username]",
		Short: "List all roles, or the roles of one user",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStores(cmd.Context(), func(s *stores) error {
				var (
					names []string
					err   error
				)
				if len(args) == 1 {
					names, err = s.authorization.Roles(cmd.Context(), args[0])
				} else {
					names, err = s.authorization.RoleNames(cmd.Context())
				}
				if err != nil {
					return err
				}
				if len(names) > 0 {
					fmt.Fprintln(cmd.OutOrStdout(), strings.Join(names, "\n"))
				}
				return nil
			})
		},
	}
}

func newRoleSetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "set <username> [role...]",
		Short: "Replace the roles of a user in one step",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStores(cmd.Context(), func(s *stores) error {
				if _, err := s.authorization.Update(cmd.Context(), args[0], args[1:]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], strings.Join(args[1:], ","))
				return nil
			})
		},
	}
}

func report(cmd *cobra.Command, changed bool, done, unchanged, subject string) {
	format := done
	if !changed {
		format = unchanged
	}
	fmt.Fprintf(cmd.OutOrStdout(), format+"\n", subject)
}
