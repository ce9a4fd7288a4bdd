package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orbital-labs/orbital/internal/database"
	apperrors "github.com/orbital-labs/orbital/internal/errors"
	"github.com/orbital-labs/orbital/internal/model"
	"github.com/orbital-labs/orbital/internal/repository"
	"github.com/orbital-labs/orbital/internal/service"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the user behind the stored credential",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()

		user, err := resolveUser(cmd.Context(), db)
		if err != nil {
			return err
		}

		fmt.Println(titleStyle.Render(user.Name))
		fmt.Println(user.Email)
		fmt.Println(dimStyle.Render(user.ID))
		return nil
	},
}

// resolveUser maps the stored credential to its user. An absent or expired
// credential is NotAuthenticated; so is a revoked session.
func resolveUser(ctx context.Context, db *database.DB) (*model.User, error) {
	store, err := credentialStore()
	if err != nil {
		return nil, err
	}

	cred, err := store.Load()
	if err != nil {
		return nil, err
	}
	if cred == nil || cred.IsExpired() {
		return nil, apperrors.NotAuthenticated()
	}

	auth := service.NewAuthService(
		repository.NewUserRepository(db.DB),
		repository.NewSessionRepository(db.DB),
	)
	return auth.UserForToken(ctx, cred.AccessToken)
}
