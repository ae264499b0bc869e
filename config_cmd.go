package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/drivebooks/drivebooks/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		RunE:  runConfigShow,
	}
}

func runConfigShow(_ *cobra.Command, _ []string) error {
	if loadedCfg == nil {
		return fmt.Errorf("no configuration loaded")
	}

	// Secrets never reach stdout; report only whether each one is set.
	shown := *loadedCfg
	shown.Secrets = config.Secrets{}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(shown); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "session secret set: %v\nvault key set: %v\noauth client secret set: %v\n",
		loadedCfg.Secrets.SessionSecret != "",
		loadedCfg.Secrets.VaultKey != "",
		loadedCfg.Secrets.OAuthClientSecret != "")

	return nil
}
