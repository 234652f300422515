package admin

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cloo-solutions/tutorfit/internal/scoring"
)

// RecomputeCmd returns the recompute-scores command
func RecomputeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recompute-scores",
		Short: "Recompute composite quality scores",
		Long: `Recompute the composite quality score of every template once and exit.
Weights default to the configured TUTORFIT_WEIGHT_* values.`,
		Example: `  tutorfitd recompute-scores
  tutorfitd recompute-scores --weights '{"efficacy":0.5,"follow_up":0.2,"confusion":0.1,"confidence":0.1,"components":0.1}'`,
		RunE: runRecompute,
	}

	cmd.Flags().String("weights", "", "JSON object of composite score weights")

	return cmd
}

func runRecompute(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var weights *scoring.Weights
	if raw, _ := cmd.Flags().GetString("weights"); raw != "" {
		weights = &scoring.Weights{}
		if err := json.Unmarshal([]byte(raw), weights); err != nil {
			return fmt.Errorf("invalid --weights: %w", err)
		}
	}

	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	a, err := newApp(ctx, cfg, logger, false)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.personalization.RecomputeCompositeScores(ctx, weights)
	if err != nil {
		return err
	}

	logger.Info("composite scores recomputed",
		zap.Int("updated", result.Updated),
		zap.String("snapshot_key", result.SnapshotKey))
	fmt.Fprintf(cmd.OutOrStdout(), "updated %d templates\n", result.Updated)
	if result.SnapshotKey != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "snapshot: %s\n", result.SnapshotKey)
	}
	return nil
}
