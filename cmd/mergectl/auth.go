package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/maruthi2426/merge-bot/internal/auth"
)

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram_id must be an integer: %q", s)
	}
	return id, nil
}

func newAuthoriseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "authorise <telegram_id> [gplinks_token]",
		Short: "Authorise a user (the master token is used when the token is omitted)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseID(args[0])
			if err != nil {
				return err
			}
			token := ""
			if len(args) == 2 {
				token = args[1]
			}
			return a.withService(cmd.Context(), func(s *auth.Service) error {
				r, err := s.Grant(cmd.Context(), target, token)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Authorised %d until %s\n", r.UserID, r.ExpiresAt.Format(time.RFC3339))
				return nil
			})
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <telegram_id>",
		Short: "Show a user's authorization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withService(cmd.Context(), func(s *auth.Service) error {
				r, ok, err := s.Status(cmd.Context(), user)
				if err != nil {
					return err
				}
				switch {
				case !ok:
					fmt.Fprintf(cmd.OutOrStdout(), "%d: not authorised\n", user)
				case !r.Active(time.Now()):
					fmt.Fprintf(cmd.OutOrStdout(), "%d: expired at %s\n", user, r.ExpiresAt.Format(time.RFC3339))
				default:
					fmt.Fprintf(cmd.OutOrStdout(), "%d: authorised until %s\n", user, r.ExpiresAt.Format(time.RFC3339))
				}
				return nil
			})
		},
	}
}

func newAdminsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admins",
		Short: "List or edit bot admins",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List admins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, closeFn, err := a.openStore(cmd.Context(), a)
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()
			ids, err := store.Admins(cmd.Context())
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No admins set.")
				return nil
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}

	edit := func(use, short string, apply func(cmd *cobra.Command, store auth.Store, id int64) error) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <telegram_id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				store, closeFn, err := a.openStore(cmd.Context(), a)
				if err != nil {
					return err
				}
				defer func() { _ = closeFn() }()
				return apply(cmd, store, id)
			},
		}
	}

	add := edit("add", "Add an admin", func(cmd *cobra.Command, store auth.Store, id int64) error {
		if err := store.AddAdmin(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added admin: %d\n", id)
		return nil
	})
	del := edit("del", "Remove an admin", func(cmd *cobra.Command, store auth.Store, id int64) error {
		if err := store.RemoveAdmin(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed admin: %d\n", id)
		return nil
	})

	cmd.AddCommand(list, add, del)
	return cmd
}
