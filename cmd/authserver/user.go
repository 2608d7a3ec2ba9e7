package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	auth "github.com/goliatone/go-session-auth"
)

func newUserCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage credentials",
	}

	cmd.AddCommand(
		newUserCreateCmd(c),
		newUserPasswdCmd(c),
		newUserStateCmd(c, "disable", auth.CredentialDisabled),
		newUserStateCmd(c, "enable", auth.CredentialActive),
		newUserDeleteCmd(c),
		newUserListCmd(c),
	)
	return cmd
}

func newUserCreateCmd(c *cli) *cobra.Command {
	var (
		password string
		disabled bool
		roles    []string
	)

	cmd := &cobra.Command{
		Use:   "create <username>",
		Short: "Create a credential and optionally grant roles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state := auth.CredentialActive
			if disabled {
				state = auth.CredentialDisabled
			}
			return c.withStores(cmd.Context(), func(s *stores) error {
				handler := auth.NewProvisionCredentialHandler(s.credentials, s.authorization).
					WithLogger(c.logger)
				err := handler.Execute(cmd.Context(), auth.ProvisionCredentialMessage{
					Username: args[0],
					Password: password,
					State:    state,
					Roles:    roles,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", args[0])
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "clear text password")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "create the credential disabled")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role to grant, repeatable")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newUserPasswdCmd(c *cli) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "passwd <username>",
		Short: "Replace the password of a credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStores(cmd.Context(), func(s *stores) error {
				return updateCredential(cmd.Context(), s, args[0], func(cred *auth.Credential) error {
					return cred.SetPassword(c.hasher, password)
				})
			})
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "new clear text password")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newUserStateCmd(c *cli, use string, state auth.CredentialState) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <username>",
		Short: fmt.Sprintf("Set the credential state to %s", state),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStores(cmd.Context(), func(s *stores) error {
				err := updateCredential(cmd.Context(), s, args[0], func(cred *auth.Credential) error {
					cred.State = state
					return nil
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is %s\n", args[0], state)
				return nil
			})
		},
	}
}

func newUserDeleteCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <username>",
		Short: "Delete a credential and its role memberships",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStores(cmd.Context(), func(s *stores) error {
				cred, err := s.credentials.Read(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if _, err := s.credentials.Delete(cmd.Context(), cred.ID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func newUserListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List usernames",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withStores(cmd.Context(), func(s *stores) error {
				names, err := s.credentials.Usernames(cmd.Context())
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

func updateCredential(ctx context.Context, s *stores, username string, mutate func(*auth.Credential) error) error {
	cred, err := s.credentials.Read(ctx, username)
	if err != nil {
		return err
	}
	if err := mutate(cred); err != nil {
		return err
	}
	ok, err := s.credentials.Update(ctx, cred)
	if err != nil {
		return err
	}
	if !ok {
		return auth.ErrCredentialNotFound
	}
	return nil
}
