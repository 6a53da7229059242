package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/wispberry-tech/medhelp-web/config"
	"github.com/wispberry-tech/medhelp-web/core"
	"github.com/wispberry-tech/medhelp-web/modules"
)

type loginOptions struct {
	email    string
	password string
	code     string
	keep     bool
}

func newLoginCmd(a *app) *cobra.Command {
	var opts loginOptions

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the API and show the modules you can access",
		Long: `Sign in with email and password, completing two-factor verification when
the server asks for it, then print the signed-in user and the navigation
modules visible to them. Missing values are prompted for interactively.

The session only lives for the duration of the command; it is logged out
before exiting unless --keep is given.

Examples:
  medhelp login
  medhelp login --email pharmacist@example.com
  medhelp login --email admin@example.com --password 'Secret123' --code 123456`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd.Context(), cmd.OutOrStdout(), a.cfg, opts, huhPrompter{})
		},
	}

	cmd.Flags().StringVar(&opts.email, "email", "", "account email")
	cmd.Flags().StringVar(&opts.password, "password", "", "account password (prompted when empty)")
	cmd.Flags().StringVar(&opts.code, "code", "", "two-factor code (prompted when required)")
	cmd.Flags().BoolVar(&opts.keep, "keep", false, "do not log out the server session before exiting")

	return cmd
}

// prompter asks for values that were not given as flags
type prompter interface {
	Credentials(email, password *string) error
	Code(code *string) error
}

type huhPrompter struct{}

func (huhPrompter) Credentials(email, password *string) error {
	var fields []huh.Field
	if *email == "" {
		fields = append(fields, huh.NewInput().
			Title("Email").
			Placeholder("you@example.com").
			Value(email))
	}
	if *password == "" {
		fields = append(fields, huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(password))
	}
	if len(fields) == 0 {
		return nil
	}

	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return fmt.Errorf("prompt failed: %w", err)
	}
	return nil
}

func (huhPrompter) Code(code *string) error {
	input := huh.NewInput().
		Title("Two-factor code").
		Description("Enter the 6-digit code sent to you").
		CharLimit(6).
		Value(code)

	if err := huh.NewForm(huh.NewGroup(input)).Run(); err != nil {
		return fmt.Errorf("prompt failed: %w", err)
	}
	return nil
}

func runLogin(ctx context.Context, out io.Writer, cfg *config.Config, opts loginOptions, prompt prompter) error {
	session, err := core.NewSession(core.Config{
		BaseURL: cfg.APIURL,
		Timeout: cfg.RequestTimeout,
		Navigator: core.NavigatorFunc(func(route string) {
			fmt.Fprintf(out, "→ %s\n", route)
		}),
	})
	if err != nil {
		return err
	}

	if opts.email == "" || opts.password == "" {
		if err := prompt.Credentials(&opts.email, &opts.password); err != nil {
			return err
		}
	}

	result, err := session.Login(ctx, opts.email, opts.password)
	if err != nil {
		return loginError(err)
	}

	if mfa, ok := result.(core.NeedsVerification); ok {
		fmt.Fprintf(out, "Two-factor verification required (%s)\n", mfa.NextRoute())
		if opts.code == "" {
			if err := prompt.Code(&opts.code); err != nil {
				return err
			}
		}
		if err := session.Verify2FA(ctx, mfa.SessionID, opts.code); err != nil {
			return loginError(err)
		}
	}

	user, ok := session.User()
	if !ok {
		return errors.New("login did not establish a session")
	}

	printUser(out, user)
	fmt.Fprintln(out)
	printModules(out, modules.Default().Visible(user))

	if !opts.keep {
		session.Logout(ctx)
	}
	return nil
}

// loginError keeps the user-facing message and drops transport details
func loginError(err error) error {
	return errors.New(core.UserMessage(err))
}

func printUser(out io.Writer, user *core.User) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "User:\t%s <%s>\n", user.DisplayName(), user.Email)
	fmt.Fprintf(tw, "Roles:\t%s\n", strings.Join(user.Roles, ", "))
	if user.BranchName != "" {
		fmt.Fprintf(tw, "Branch:\t%s\n", user.BranchName)
	}
	fmt.Fprintf(tw, "Two-factor:\t%t\n", user.MFAEnabled)
	tw.Flush()
}

func printModules(out io.Writer, mods []modules.Module) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tHREF\tCATEGORY")
	for _, m := range mods {
		category := string(m.Category)
		if category == "" {
			category = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.ID, m.Title, m.Href, category)
	}
	tw.Flush()
}
