package cli

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"charrag/internal/adapter/llm"
	"charrag/internal/domain"
	"charrag/internal/port"
	"charrag/internal/usecase"
)

var charactersCmd = &cobra.Command{
	Use:   "characters",
	Short: "List discovered characters and their index status",
	RunE:  runCharacters,
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List LLM providers and their default models",
	RunE:  runProviders,
}

func init() {
	rootCmd.AddCommand(charactersCmd)
	rootCmd.AddCommand(providersCmd)
}

func runCharacters(cmd *cobra.Command, args []string) error {
	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	headers, err := a.registry.Headers()
	if err != nil {
		return err
	}
	byKey := make(map[string]port.ArtifactHeader, len(headers))
	for _, h := range headers {
		byKey[h.Character] = h
	}

	chars := a.catalog.List()
	if len(chars) == 0 {
		fmt.Printf("No character definitions found in %s\n", a.cfg.CharactersDir(GetRootDir()))
		return nil
	}
	fmt.Println(header(fmt.Sprintf("%d character(s)", len(chars))))
	for _, c := range chars {
		fmt.Printf("\n%s %s\n", labelStyle.Render(c.Name), dimStyle.Render(filepath.Base(c.Source)))
		if c.Description != "" {
			fmt.Println(kv("description", c.Description))
		}
		if c.Era != "" {
			fmt.Println(kv("era", c.Era))
		}
		fmt.Println(kv("memories", describeData(c)))
		h, ok := byKey[usecase.CharacterKey(c.Name)]
		if !ok {
			fmt.Println(kv("index", warnStyle.Render("not built")))
			continue
		}
		fmt.Println(kv("index", fmt.Sprintf("%s/%s, %d records, built %s",
			h.Kind, h.Metric, h.Records, h.BuiltAt.Local().Format("2006-01-02 15:04"))))
	}
	return nil
}

func describeData(c *domain.Character) string {
	var parts []string
	for _, kind := range domain.AllMemoryKinds {
		if n := len(c.Data[kind]); n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, kind))
		}
	}
	if c.Lore != "" {
		parts = append(parts, "lore")
	}
	if len(parts) == 0 {
		return "none"
	}
	return fmt.Sprint(parts)
}

func runProviders(cmd *cobra.Command, args []string) error {
	available := llm.Available()
	configured := GetConfig().LLM.Provider

	fmt.Println(header("LLM providers"))
	providers := append([]llm.ProviderInfo(nil), llm.Providers...)
	sort.SliceStable(providers, func(i, j int) bool {
		return providers[i].Name == configured && providers[j].Name != configured
	})
	for _, p := range providers {
		status := dimStyle.Render("no API key")
		if available[p.Name] {
			status = "ready"
		}
		name := p.Name
		if name == configured {
			name += " (configured)"
		}
		fmt.Printf("\n%s %s\n", labelStyle.Render(name), status)
		fmt.Println(kv("default model", p.DefaultModel))
		if p.APIKeyEnv != "" {
			fmt.Println(kv("key env", p.APIKeyEnv))
		}
		if len(p.Models) > 0 {
			fmt.Println(kv("models", p.Models))
		}
	}
	return nil
}
