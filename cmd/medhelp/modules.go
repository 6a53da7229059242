package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/wispberry-tech/medhelp-web/core"
	"github.com/wispberry-tech/medhelp-web/modules"
)

type modulesOptions struct {
	roles       []string
	permissions []string
	anonymous   bool
	footer      bool
	asJSON      bool
}

func newModulesCmd(a *app) *cobra.Command {
	var opts modulesOptions

	cmd := &cobra.Command{
		Use:   "modules",
		Short: "List the navigation modules visible to a user",
		Long: `Evaluate the module registry for a user described by roles and
permissions, without contacting the API.

Examples:
  medhelp modules --role PHARMACIST --permission PRODUCT_READ --permission prescription:read
  medhelp modules --role ADMIN --footer
  medhelp modules --anonymous --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModules(cmd.OutOrStdout(), modules.Default(), opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.roles, "role", nil, "role held by the user (repeatable)")
	cmd.Flags().StringSliceVar(&opts.permissions, "permission", nil, "permission held by the user (repeatable)")
	cmd.Flags().BoolVar(&opts.anonymous, "anonymous", false, "evaluate for a visitor without a session")
	cmd.Flags().BoolVar(&opts.footer, "footer", false, "include footer modules")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print JSON instead of a table")

	return cmd
}

func runModules(out io.Writer, registry *modules.Registry, opts modulesOptions) error {
	var user *core.User
	if !opts.anonymous {
		user = &core.User{Roles: opts.roles, Permissions: opts.permissions}
	}

	visible := registry.Visible(user)
	if opts.footer {
		visible = append(visible, registry.VisibleFooter(user)...)
	}

	if opts.asJSON {
		if visible == nil {
			visible = []modules.Module{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(visible); err != nil {
			return fmt.Errorf("failed to encode modules: %w", err)
		}
		return nil
	}

	printModules(out, visible)
	return nil
}
