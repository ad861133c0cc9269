package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"charrag/internal/adapter/llm"
	"charrag/internal/port"
	"charrag/internal/usecase"
)

var (
	chatCharacter  string
	chatMessage    string
	chatStyle      string
	chatProvider   string
	chatModel      string
	chatNoMemory   bool
	chatShowPrompt bool
	chatTopK       int
	chatMinRel     float64
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to a character",
	Long: `Answer a message in character. Retrieved memories condition the reply;
when none clears the relevance cutoff the character answers from its
persona alone. Without -q an interactive session reads messages from stdin.

Examples:
  charrag chat -c holmes -q "What do you play when thinking?"
  charrag chat -c holmes --style low --provider anthropic
  charrag chat -c holmes -q "Hello" --no-memory --show-prompt`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&chatCharacter, "character", "c", "", "character name (required)")
	chatCmd.Flags().StringVarP(&chatMessage, "query", "q", "", "user message (interactive when empty)")
	chatCmd.Flags().StringVar(&chatStyle, "style", "", "style level: low, medium, high (default from config)")
	chatCmd.Flags().StringVar(&chatProvider, "provider", "", "LLM provider (default from config)")
	chatCmd.Flags().StringVar(&chatModel, "model", "", "LLM model (default: provider default)")
	chatCmd.Flags().BoolVar(&chatNoMemory, "no-memory", false, "answer without retrieval")
	chatCmd.Flags().BoolVar(&chatShowPrompt, "show-prompt", false, "print the assembled system prompt")
	chatCmd.Flags().IntVarP(&chatTopK, "top-k", "k", 0, "memories to retrieve (default from config)")
	chatCmd.Flags().Float64Var(&chatMinRel, "min-relevance", -1, "relevance cutoff in [0,1] (default from config)")
	chatCmd.MarkFlagRequired("character")
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	c, err := a.catalog.Get(chatCharacter)
	if err != nil {
		return err
	}

	llmCfg := a.cfg.LLM
	if chatProvider != "" {
		llmCfg.Provider = chatProvider
		llmCfg.Model = ""
	}
	if chatModel != "" {
		llmCfg.Model = chatModel
	}
	model, err := llm.New(llmCfg)
	if err != nil {
		return err
	}

	q, err := a.query("", chatTopK, chatMinRel, "", nil)
	if err != nil {
		return err
	}
	opts, err := a.promptOptions(chatStyle)
	if err != nil {
		return err
	}
	responder := a.responder(a.retriever(), model)

	ask := func(ctx context.Context, message string, history []port.Message) (string, error) {
		resp, err := responder.Respond(ctx, usecase.ChatRequest{
			Character: c.Name,
			Message:   message,
			History:   history,
			Query:     q,
			Prompt:    opts,
			NoMemory:  chatNoMemory || a.cfg.Prompt.NoMemory,
		})
		if err != nil {
			return "", err
		}
		if chatShowPrompt {
			fmt.Println(header("System prompt"))
			fmt.Println(dimStyle.Render(resp.Prompt.System))
			fmt.Println()
		}
		if resp.Unconditioned {
			fmt.Println(dimStyle.Render("(no memory used)"))
		} else {
			fmt.Println(dimStyle.Render(fmt.Sprintf("(%d memories used)", len(resp.Memories))))
		}
		fmt.Printf("%s\n%s\n", labelStyle.Render(c.Name+":"), replyStyle.Render(resp.Reply))
		return resp.Reply, nil
	}

	if chatMessage != "" {
		_, err := ask(cmd.Context(), chatMessage, nil)
		return err
	}

	fmt.Println(header(fmt.Sprintf("Chatting with %s via %s/%s", c.Name, model.ProviderName(), model.ModelName())))
	fmt.Println(dimStyle.Render("Empty line or Ctrl+D to quit."))
	var history []port.Message
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(labelStyle.Render("You: "))
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		message := strings.TrimSpace(scanner.Text())
		if message == "" {
			return nil
		}
		reply, err := ask(cmd.Context(), message, history)
		if err != nil {
			fmt.Println(warnStyle.Render("error: " + err.Error()))
			continue
		}
		history = append(history,
			port.Message{Role: "user", Content: message},
			port.Message{Role: "assistant", Content: reply},
		)
		history = usecase.RecentHistory(history, opts.MaxHistory)
	}
}
