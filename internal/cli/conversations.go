package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orbital-labs/orbital/internal/database"
	"github.com/orbital-labs/orbital/internal/repository"
	"github.com/orbital-labs/orbital/internal/service"
)

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "Manage stored conversations",
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your conversations, most recently active first",
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

		chatService := service.NewChatService(
			repository.NewConversationRepository(db.DB),
			repository.NewMessageRepository(db.DB),
		)
		convs, err := chatService.List(cmd.Context(), user.ID)
		if err != nil {
			return err
		}

		if len(convs) == 0 {
			fmt.Println(dimStyle.Render("No conversations yet. Start one with: orbital chat"))
			return nil
		}

		for _, conv := range convs {
			title := conv.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Println(titleStyle.Render(title))
			fmt.Println(dimStyle.Render(fmt.Sprintf("  %s  %s  %s", conv.ID, conv.Mode, conv.UpdatedAt.Local().Format("2006-01-02 15:04"))))
		}
		return nil
	},
}

var conversationsDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a conversation and its messages",
	Args:  cobra.ExactArgs(1),
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

		chatService := service.NewChatService(
			repository.NewConversationRepository(db.DB),
			repository.NewMessageRepository(db.DB),
		)
		if err := chatService.Delete(cmd.Context(), user.ID, args[0]); err != nil {
			return err
		}

		fmt.Println(successStyle.Render("✓ Deleted ") + args[0])
		return nil
	},
}

func init() {
	conversationsCmd.AddCommand(conversationsListCmd)
	conversationsCmd.AddCommand(conversationsDeleteCmd)
}
