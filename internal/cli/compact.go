package cli

import (
	"fmt"

	"github.com/lunahq/orbiter/internal/config"
	"github.com/lunahq/orbiter/pkg/memory"
	"github.com/lunahq/orbiter/pkg/pipeline"
	"github.com/spf13/cobra"
)

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Run one history compaction pass",
	Long: `Evaluate the observation history against the configured compaction
thresholds and archive the overflow into a snapshot when they are exceeded.`,
	RunE: runCompact,
}

func init() {
	rootCmd.AddCommand(compactCmd)
}

func runCompact(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := memory.NewStore(cfg.Memory.Dir)
	if err != nil {
		return fmt.Errorf("failed to open observation store: %w", err)
	}

	pipe := pipeline.New(store, cfg.Memory.Promotion, cfg.Memory.Compression)
	result, err := pipe.RunCompression()
	if err != nil {
		return err
	}

	if result.Compressed {
		fmt.Printf("Compacted: archived %d lines, %d live\n", result.ArchivedLines, result.LiveLines)
		fmt.Printf("Snapshot: %s\n", result.SnapshotPath)
	} else {
		fmt.Printf("Skipped: %s\n", result.Reason)
	}
	return nil
}
