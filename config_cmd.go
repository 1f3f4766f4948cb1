package main

import (
	"io"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/francaflow/flow-go/internal/config"
)

const redacted = "<redacted>"

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Long: `Display the effective configuration after defaults, the config file,
environment variables and flags have been applied. Secrets are redacted.`,
		Args: cobra.NoArgs,
		RunE: runConfigShow,
	}
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if cc.Flags.JSON {
		// Secret fields carry json:"-".
		return printJSON(os.Stdout, cc.Cfg)
	}

	cc.Statusf("# effective configuration (file: %s)\n", cc.CfgPath)

	return renderConfig(os.Stdout, cc.Cfg)
}

// renderConfig writes cfg as TOML with secrets masked.
func renderConfig(w io.Writer, cfg *config.Config) error {
	shown := *cfg

	if shown.Server.AdminPassword != "" {
		shown.Server.AdminPassword = redacted
	}

	if shown.Notify.Token != "" {
		shown.Notify.Token = redacted
	}

	return toml.NewEncoder(w).Encode(shown)
}
