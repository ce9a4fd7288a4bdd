package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/orbital-labs/orbital/internal/ai"
	"github.com/orbital-labs/orbital/internal/chat"
	"github.com/orbital-labs/orbital/internal/database"
	apperrors "github.com/orbital-labs/orbital/internal/errors"
	"github.com/orbital-labs/orbital/internal/model"
	"github.com/orbital-labs/orbital/internal/repository"
	"github.com/orbital-labs/orbital/internal/service"
)

var (
	flagConversation string
	flagMode         string
	flagTools        bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.OpenAIAPIKey == "" {
			return apperrors.MissingRequired("ORBITAL_OPENAI_API_KEY")
		}

		mode := model.ConversationMode(flagMode)
		switch mode {
		case model.ModeChat, model.ModeTool, model.ModeAgent:
		default:
			return apperrors.InvalidInput("mode", "must be chat, tool, or agent")
		}

		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()

		user, err := resolveUser(ctx, db)
		if err != nil {
			return err
		}

		tools := ai.ToolConfig{}
		if flagTools {
			tools, err = selectTools()
			if err != nil {
				return err
			}
		}

		chatService := service.NewChatService(
			repository.NewConversationRepository(db.DB),
			repository.NewMessageRepository(db.DB),
		)
		conv, err := chatService.GetOrCreate(ctx, user.ID, flagConversation, mode)
		if err != nil {
			return err
		}

		renderer := newTerminalRenderer(os.Stdout)
		printSessionHeader(conv, tools)
		renderer.replayHistory(conv.Messages)

		session := chat.NewSession(chatService, ai.NewOpenAIEngine(cfg.OpenAIAPIKey, cfg.OpenAIModel), renderer, user.ID, conv, tools)
		if err := session.Run(ctx, os.Stdin); err != nil && ctx.Err() == nil {
			return err
		}

		fmt.Println()
		fmt.Println(dimStyle.Render("Session ended. Resume with: orbital chat --conversation " + conv.ID))
		return nil
	},
}

func init() {
	chatCmd.Flags().StringVar(&flagConversation, "conversation", "", "resume an existing conversation")
	chatCmd.Flags().StringVar(&flagMode, "mode", "chat", "conversation mode (chat|tool|agent)")
	chatCmd.Flags().BoolVar(&flagTools, "tools", false, "pick tools to enable for this session")
}

func selectTools() (ai.ToolConfig, error) {
	options := make([]huh.Option[string], 0, len(ai.AvailableTools))
	for _, spec := range ai.AvailableTools {
		options = append(options, huh.NewOption(fmt.Sprintf("%s - %s", spec.Name, spec.Description), spec.Name))
	}

	var selected []string
	form := huh.NewForm(huh.NewGroup(
		huh.NewMultiSelect[string]().
			Title("Enable tools for this session").
			Options(options...).
			Value(&selected),
	))
	if err := form.Run(); err != nil {
		return ai.ToolConfig{}, err
	}

	tools := ai.ToolConfig{}
	for _, name := range selected {
		tools = tools.Enable(name)
	}
	return tools, nil
}

func printSessionHeader(conv *model.Conversation, tools ai.ToolConfig) {
	fmt.Println(titleStyle.Render(conv.Title) + dimStyle.Render("  ("+string(conv.Mode)+")"))
	if names := tools.Names(); len(names) > 0 {
		fmt.Println(dimStyle.Render(fmt.Sprintf("tools: %v", names)))
	}
	fmt.Println(dimStyle.Render("Type 'exit' to end the session."))
	fmt.Println()
}

// terminalRenderer prints deltas as they stream and replays stored history
// through glamour.
type terminalRenderer struct {
	out      *os.File
	markdown *glamour.TermRenderer
}

func newTerminalRenderer(out *os.File) *terminalRenderer {
	md, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		md = nil
	}
	return &terminalRenderer{out: out, markdown: md}
}

func (r *terminalRenderer) replayHistory(msgs []model.Message) {
	for _, msg := range msgs {
		switch msg.Role {
		case model.RoleUser:
			fmt.Fprintln(r.out, promptStyle.Render("you> ")+msg.Content)
		case model.RoleAssistant:
			fmt.Fprint(r.out, r.renderMarkdown(msg.Content))
		}
	}
	if len(msgs) > 0 {
		fmt.Fprintln(r.out)
	}
}

func (r *terminalRenderer) renderMarkdown(content string) string {
	if r.markdown != nil {
		if rendered, err := r.markdown.Render(content); err == nil {
			return rendered
		}
	}
	return content + "\n"
}

func (r *terminalRenderer) Prompt() {
	fmt.Fprint(r.out, promptStyle.Render("you> "))
}

func (r *terminalRenderer) Delta(content string) {
	fmt.Fprint(r.out, content)
}

func (r *terminalRenderer) TurnDone(_ *model.Message, result *ai.Result) {
	fmt.Fprintln(r.out)
	if result.OutputTokens > 0 {
		fmt.Fprintln(r.out, dimStyle.Render(fmt.Sprintf("[%s, %d tokens]", result.FinishReason, result.OutputTokens)))
	}
	fmt.Fprintln(r.out)
}

func (r *terminalRenderer) TurnFailed(err error) {
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, errorStyle.Render("Error: ")+err.Error())
	fmt.Fprintln(r.out)
}
