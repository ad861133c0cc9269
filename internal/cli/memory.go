package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"charrag/internal/usecase"
)

var (
	resetCharacter string

	rememberCharacter  string
	rememberCategory   string
	rememberEmotion    string
	rememberImportance float64
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop a character's index",
	Long: `Drop the in-memory and stored index of a character, including its
episodic memories. Queries fail until the next 'index'.

Example:
  charrag reset -c holmes`,
	RunE: runReset,
}

var rememberCmd = &cobra.Command{
	Use:   "remember TEXT",
	Short: "Add an episodic memory to a character",
	Long: `Embed a new episodic memory and append it to the character's index
without rebuilding it. The character must have been indexed. Past the
configured episodic.max_memories, the least important and oldest memories
are evicted.

Example:
  charrag remember -c holmes --category case --emotion excitement --importance 0.9 "Watson brought a new case"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRemember,
}

func init() {
	rootCmd.AddCommand(resetCmd)
	resetCmd.Flags().StringVarP(&resetCharacter, "character", "c", "", "character name (required)")
	resetCmd.MarkFlagRequired("character")

	rootCmd.AddCommand(rememberCmd)
	rememberCmd.Flags().StringVarP(&rememberCharacter, "character", "c", "", "character name (required)")
	rememberCmd.Flags().StringVar(&rememberCategory, "category", "", "memory category")
	rememberCmd.Flags().StringVar(&rememberEmotion, "emotion", "", "emotion attached to the memory")
	rememberCmd.Flags().Float64Var(&rememberImportance, "importance", usecase.DefaultImportance, "importance in [0,1]")
	rememberCmd.MarkFlagRequired("character")
}

func runReset(cmd *cobra.Command, args []string) error {
	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	c, err := a.catalog.Get(resetCharacter)
	if err != nil {
		return err
	}
	if err := a.registry.Reset(c.Name); err != nil {
		return err
	}
	fmt.Printf("Index of %s dropped.\n", c.Name)
	return nil
}

func runRemember(cmd *cobra.Command, args []string) error {
	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	c, err := a.catalog.Get(rememberCharacter)
	if err != nil {
		return err
	}
	st, err := a.registry.Remember(cmd.Context(), c.Name, usecase.Episode{
		Text:       strings.Join(args, " "),
		Category:   rememberCategory,
		Emotion:    rememberEmotion,
		Importance: rememberImportance,
		At:         time.Now(),
	})
	if err != nil {
		return fmt.Errorf("remember failed: %w", err)
	}
	fmt.Printf("%s now holds %d memories.\n", c.Name, st.Records)
	return nil
}
