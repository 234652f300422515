package admin

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/tutorfit/internal/domain"
	"github.com/cloo-solutions/tutorfit/internal/service"
)

func ClustersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clusters",
		Short: "Inspect query clusters",
		Long:  "List clusters and show their learning history",
	}

	cmd.AddCommand(ClustersListCmd())
	cmd.AddCommand(ClustersShowCmd())

	return cmd
}

func ClustersListCmd() *cobra.Command {
	var (
		limit  int
		cursor string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List clusters, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")

			cfg, logger, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, logger, false)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.clusters.List(cmd.Context(), cursor, limit)
			if err != nil {
				return fmt.Errorf("failed to list clusters: %w", err)
			}
			return printClusterList(cmd.OutOrStdout(), outputFormat, result)
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")

	return cmd
}

func ClustersShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a cluster and its recent learning events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")

			cfg, logger, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, logger, false)
			if err != nil {
				return err
			}
			defer a.Close()

			detail, err := a.clusters.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printClusterDetail(cmd.OutOrStdout(), outputFormat, detail)
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func clusterJSON(c *domain.Cluster) map[string]interface{} {
	return map[string]interface{}{
		"id":                   c.ID,
		"representative_query": c.RepresentativeQuery,
		"topic":                c.Topic,
		"total_queries":        c.TotalQueries,
		"success_count":        c.SuccessCount,
		"success_rate":         c.SuccessRate,
		"prompt_enhancement":   c.PromptEnhancement,
		"created_at":           c.CreatedAt,
	}
}

func printClusterList(w io.Writer, outputFormat string, result *service.ListClustersOutput) error {
	if outputFormat == "json" {
		data := make([]map[string]interface{}, len(result.Items))
		for i, c := range result.Items {
			data[i] = clusterJSON(c)
		}
		output := map[string]interface{}{
			"items":    data,
			"cursor":   result.Cursor,
			"has_more": result.HasMore,
		}
		jsonBytes, _ := json.MarshalIndent(output, "", "  ")
		fmt.Fprintln(w, string(jsonBytes))
		return nil
	}

	if len(result.Items) == 0 {
		fmt.Fprintln(w, "No clusters found")
		return nil
	}
	fmt.Fprintln(w, "Clusters:")
	for _, c := range result.Items {
		topic := c.Topic
		if topic == "" {
			topic = "-"
		}
		fmt.Fprintf(w, "  %s [%s] %d/%d successful: %q\n", c.ID, topic, c.SuccessCount, c.TotalQueries, c.RepresentativeQuery)
	}
	if result.HasMore && result.Cursor != "" {
		fmt.Fprintf(w, "\nMore results available. Use --cursor %s\n", result.Cursor)
	}
	return nil
}

func printClusterDetail(w io.Writer, outputFormat string, detail *service.ClusterDetail) error {
	if outputFormat == "json" {
		output := clusterJSON(detail.Cluster)
		events := make([]map[string]interface{}, len(detail.RecentEvents))
		for i, e := range detail.RecentEvents {
			events[i] = map[string]interface{}{
				"id":               e.ID,
				"assignment_id":    e.AssignmentID,
				"prompt_update":    e.PromptUpdate,
				"confidence_score": e.ConfidenceScore,
				"trigger_reason":   e.TriggerReason,
				"created_at":       e.CreatedAt,
			}
		}
		output["recent_events"] = events
		jsonBytes, _ := json.MarshalIndent(output, "", "  ")
		fmt.Fprintln(w, string(jsonBytes))
		return nil
	}

	c := detail.Cluster
	fmt.Fprintf(w, "Cluster %s\n", c.ID)
	fmt.Fprintf(w, "  query:       %s\n", c.RepresentativeQuery)
	fmt.Fprintf(w, "  topic:       %s\n", c.Topic)
	fmt.Fprintf(w, "  success:     %d/%d (%.2f)\n", c.SuccessCount, c.TotalQueries, c.SuccessRate)
	if c.PromptEnhancement != "" {
		fmt.Fprintf(w, "  enhancement: %s\n", c.PromptEnhancement)
	}
	if len(detail.RecentEvents) == 0 {
		fmt.Fprintln(w, "  no learning events")
		return nil
	}
	fmt.Fprintln(w, "  recent learning events:")
	for _, e := range detail.RecentEvents {
		fmt.Fprintf(w, "    %s %s (confidence %.2f)\n", e.CreatedAt.Format("2006-01-02 15:04:05"), e.TriggerReason, e.ConfidenceScore)
	}
	return nil
}
