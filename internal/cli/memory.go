package cli

import (
	"fmt"
	"strings"

	"github.com/lunahq/orbiter/internal/config"
	"github.com/lunahq/orbiter/pkg/memory"
	"github.com/spf13/cobra"
)

var (
	memoryGroup   string
	memorySession string
	memoryLimit   int
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect the observation store",
}

var memorySearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search observation history",
	Long:  `Case-insensitive substring search over summaries, categories and rationales.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runMemorySearch,
}

var memoryShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the curated memory file",
	RunE:  runMemoryShow,
}

func init() {
	memorySearchCmd.Flags().StringVar(&memoryGroup, "group", "", "filter by group id")
	memorySearchCmd.Flags().StringVar(&memorySession, "session", "", "filter by session key")
	memorySearchCmd.Flags().IntVar(&memoryLimit, "limit", 20, "maximum results")

	memoryCmd.AddCommand(memorySearchCmd)
	memoryCmd.AddCommand(memoryShowCmd)
	rootCmd.AddCommand(memoryCmd)
}

func openStore() (*memory.Store, error) {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return memory.NewStore(cfg.Memory.Dir)
}

func runMemorySearch(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	filter := &memory.Filter{GroupID: memoryGroup, SessionKey: memorySession}
	events, err := store.Search(args[0], filter)
	if err != nil {
		return err
	}

	if memoryLimit > 0 && len(events) > memoryLimit {
		events = events[len(events)-memoryLimit:]
	}

	for _, ev := range events {
		summary := ev.Summary
		if len(summary) > 120 {
			summary = summary[:117] + "..."
		}
		fmt.Printf("%s  %-14s %-8s %s\n",
			ev.OccurredAt.Format("2006-01-02 15:04"),
			ev.EventType,
			ev.Status,
			summary,
		)
	}
	fmt.Printf("%d observation(s)\n", len(events))
	return nil
}

func runMemoryShow(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	lines, err := store.ReadMemory()
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		fmt.Println("Curated memory is empty")
		return nil
	}
	fmt.Println(strings.Join(lines, "\n"))
	return nil
}
