// Package cmd wires the engine components into the personapulse CLI.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/personapulse/personapulse/internal/audit"
	"github.com/personapulse/personapulse/internal/config"
	"github.com/personapulse/personapulse/internal/dispatch"
	"github.com/personapulse/personapulse/internal/generate"
	"github.com/personapulse/personapulse/internal/publish"
	"github.com/personapulse/personapulse/internal/reply"
	"github.com/personapulse/personapulse/internal/secrets"
	"github.com/personapulse/personapulse/internal/store"
	"github.com/personapulse/personapulse/internal/webhook"
)

var version = "0.4.0"

var rootCmd = &cobra.Command{
	Use:   "personapulse",
	Short: "PersonaPulse - persona social automation engine",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(dispatchCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("personapulse", version)
	},
}

// engine bundles everything a command needs.
type engine struct {
	cfg        *config.Config
	store      *store.Store
	vault      *secrets.Vault
	audit      *audit.Logger
	dispatcher *dispatch.Dispatcher
	gateway    *webhook.Gateway
}

func buildEngine() (*engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	key, err := secrets.ResolveKey(cfg.Vault)
	if err != nil {
		return nil, fmt.Errorf("resolve vault key: %w", err)
	}
	vault := secrets.NewVault(key)

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	auditLog := audit.New(st, cfg.Audit)
	gen := generate.New(vault, generate.NewHTTPClient(cfg.Generator), cfg.Generator)
	pub := publish.NewGraphPublisher(cfg.Publisher)
	eng := reply.New(st, vault, gen, pub, auditLog, cfg.Dispatcher.ThreadContext)
	disp := dispatch.New(st, vault, gen, pub, eng, auditLog, cfg.Dispatcher)
	gw := webhook.New(st, vault, eng, cfg.Gateway)

	return &engine{
		cfg:        cfg,
		store:      st,
		vault:      vault,
		audit:      auditLog,
		dispatcher: disp,
		gateway:    gw,
	}, nil
}

func (e *engine) close() {
	e.audit.Close()
	e.store.Close()
}
