package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"charrag/internal/adapter/analyzer"
	"charrag/internal/domain"
	"charrag/internal/usecase"
)

var (
	queryCharacter string
	queryText      string
	queryTopK      int
	queryMinRel    float64
	queryMethod    string
	queryKinds     []string
	queryJSON      bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Show the memories retrieved for a message",
	Long: `Retrieve the memories of a character most relevant to a message, without
calling a language model.

Examples:
  charrag query -c holmes -q "Do you play an instrument?"
  charrag query -c holmes -q "your enemies" --kinds lore,episodic --top-k 5 --json`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryCharacter, "character", "c", "", "character name (required)")
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "user message (required)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	queryCmd.Flags().Float64Var(&queryMinRel, "min-relevance", -1, "relevance cutoff in [0,1] (default from config)")
	queryCmd.Flags().StringVar(&queryMethod, "method", "", "relevance method: sigmoid, linear, inverse, exponential")
	queryCmd.Flags().StringSliceVar(&queryKinds, "kinds", nil, "restrict to memory kinds")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.MarkFlagRequired("character")
	queryCmd.MarkFlagRequired("query")
}

func runQuery(cmd *cobra.Command, args []string) error {
	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	c, err := a.catalog.Get(queryCharacter)
	if err != nil {
		return err
	}
	q, err := a.query(queryText, queryTopK, queryMinRel, queryMethod, queryKinds)
	if err != nil {
		return err
	}

	results, err := a.retriever().Retrieve(cmd.Context(), c.Name, q)
	if err != nil {
		return fmt.Errorf("retrieval failed: %w", err)
	}

	if queryJSON {
		output, _ := json.MarshalIndent(results, "", "  ")
		fmt.Println(string(output))
		return nil
	}
	if len(results) == 0 {
		fmt.Println("No memory cleared the relevance cutoff.")
		return nil
	}
	fmt.Println(header(fmt.Sprintf("%d memories of %s for: %s", len(results), c.Name, queryText)))
	printMemories(results, a.tokenizer)
	return nil
}

// memoryPreviewTokens bounds the text shown per memory.
const memoryPreviewTokens = 120

func printMemories(results domain.RetrievalResult, tok *analyzer.Tokenizer) {
	for i, r := range results {
		fmt.Printf("%s %s\n",
			memoryHeader.Render(fmt.Sprintf("[%d] %s", i+1, r.Record.Kind())),
			dimStyle.Render(fmt.Sprintf("relevance %.3f  raw %.3f  %s", r.Relevance, r.RawScore, usecase.Stars(r.Relevance))))
		text := tok.Truncate(strings.TrimSpace(r.Record.Text), memoryPreviewTokens)
		fmt.Println(replyStyle.Render(text))
	}
}
