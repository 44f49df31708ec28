package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/personapulse/personapulse/internal/config"
	"github.com/personapulse/personapulse/internal/secrets"
	"github.com/personapulse/personapulse/internal/store"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, store, and vault health",
	RunE: func(cmd *cobra.Command, args []string) error {
		ok := color.New(color.FgGreen).SprintFunc()
		bad := color.New(color.FgRed).SprintFunc()

		cfg, err := config.Load()
		if err != nil {
			fmt.Println(bad("✗"), "config:", err)
			return err
		}
		fmt.Println(ok("✓"), "config loaded")

		key, err := secrets.ResolveKey(cfg.Vault)
		if err != nil {
			fmt.Println(bad("✗"), "vault key:", err)
			return err
		}
		vault := secrets.NewVault(key)
		blob, err := vault.Encrypt("doctor-probe")
		if err == nil {
			_, _, err = vault.Open(blob, "doctor probe")
		}
		if err != nil {
			fmt.Println(bad("✗"), "vault roundtrip:", err)
			return err
		}
		fmt.Println(ok("✓"), "vault roundtrip")

		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			fmt.Println(bad("✗"), "store:", err)
			return err
		}
		defer st.Close()
		if err := st.DB().Ping(); err != nil {
			fmt.Println(bad("✗"), "store ping:", err)
			return err
		}
		personas, err := st.ListActivePersonas()
		if err != nil {
			fmt.Println(bad("✗"), "store query:", err)
			return err
		}
		fmt.Println(ok("✓"), fmt.Sprintf("store ok (%d active personas)", len(personas)))
		return nil
	},
}
