package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/browser"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/orbital-labs/orbital/internal/deviceflow"
)

const loginScope = "openid profile email"

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authorize this device and store the credential",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, err := credentialStore()
		if err != nil {
			return err
		}

		client := deviceflow.NewClient(cfg.ServerURL)
		cred, err := client.ObtainCredential(ctx, cfg.ClientID, loginScope, func(grant *deviceflow.Grant) {
			fmt.Println()
			fmt.Println("To authorize this device, visit:")
			fmt.Println("  " + titleStyle.Render(grant.VerificationURI))
			fmt.Println()
			fmt.Println("and enter the code:")
			fmt.Println(codeStyle.Render(grant.UserCode))
			fmt.Println()
			fmt.Println(dimStyle.Render("Waiting for approval..."))

			if uri := grant.VerificationURIComplete; uri != "" {
				if err := browser.OpenURL(uri); err != nil {
					log.Debug().Err(err).Msg("could not open browser")
				}
			}
		})
		if err != nil {
			return err
		}

		if err := store.Store(cred); err != nil {
			// the session is live server-side; only the local cache failed
			log.Warn().Err(err).Msg("failed to save credential")
			fmt.Fprintln(os.Stderr, errorStyle.Render("Warning:")+" credential could not be saved; you may need to login again next time")
		}

		fmt.Println(successStyle.Render("✓ Logged in"))
		return nil
	},
}
