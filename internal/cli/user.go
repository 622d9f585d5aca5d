package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"routine-planner/internal/httpapi"
	"routine-planner/internal/model"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage coaches and students",
	}
	cmd.AddCommand(newUserAddCmd())
	cmd.AddCommand(newUserLinkCmd())
	cmd.AddCommand(newUserTokenCmd())
	return cmd
}

func newUserAddCmd() *cobra.Command {
	var (
		name string
		role string
	)

	cmd := &cobra.Command{
		Use:   "add ID",
		Short: "Create a user or update its name and role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := model.Role(role)
			if !r.Valid() {
				return fmt.Errorf("--role must be coach or student, got %q", role)
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			user := &model.User{ID: args[0], Name: name, Role: r}
			if err := a.users.Upsert(cmd.Context(), user); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Saved %s %q\n", r, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&role, "role", string(model.RoleStudent), "coach or student")
	return cmd
}

func newUserLinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link ID TELEGRAM_ID",
		Short: "Attach a Telegram chat to a user (the bot's /start shows the id)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			telegramID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("telegram id %q is not a number", args[1])
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.users.LinkTelegram(cmd.Context(), args[0], telegramID); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Linked %q to Telegram %d\n", args[0], telegramID)
			return nil
		},
	}
}

func newUserTokenCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token ID",
		Short: "Issue an API bearer token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if a.cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret is not set; the API trusts identity headers instead")
			}
			user, err := a.users.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			token, err := httpapi.GenerateToken(a.cfg.Auth.JWTSecret, user.Actor(), ttl)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "Token lifetime")
	return cmd
}
