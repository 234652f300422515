package client

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// AskRequest represents the assignment API request.
type AskRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

// AskResponse represents the assignment API response.
type AskResponse struct {
	AssignmentID    string  `json:"assignment_id,omitempty"`
	ClusterID       string  `json:"cluster_id,omitempty"`
	TemplateID      string  `json:"template_id,omitempty"`
	EnhancementText string  `json:"enhancement_text"`
	SelectionMethod string  `json:"selection_method"`
	IsNewCluster    bool    `json:"is_new_cluster"`
	Similarity      float64 `json:"similarity"`
	Topic           string  `json:"topic,omitempty"`
}

// AskCmd creates the ask command.
func AskCmd() *cobra.Command {
	var sessionID, userID string

	cmd := &cobra.Command{
		Use:   "ask <query>",
		Short: "Get the tutoring prompt enhancement for a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api := NewAPIClientWithCmd(cmd)

			var out AskResponse
			err := api.Post(cmd.Context(), "/assignments", AskRequest{
				Query:     args[0],
				SessionID: sessionID,
				UserID:    userID,
			}, &out)
			if err != nil {
				return fmt.Errorf("assignment failed: %w", err)
			}
			return printAsk(cmd.OutOrStdout(), &out, outputJSON)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session identifier")
	cmd.Flags().StringVar(&userID, "user", "", "User identifier")

	return cmd
}

func printAsk(w io.Writer, out *AskResponse, outputJSON bool) error {
	if outputJSON {
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Fprintln(w, string(data))
		return nil
	}

	if out.AssignmentID != "" {
		fmt.Fprintf(w, "Assignment: %s\n", out.AssignmentID)
	}
	if out.ClusterID != "" {
		suffix := ""
		if out.IsNewCluster {
			suffix = " (new)"
		}
		fmt.Fprintf(w, "Cluster:    %s%s similarity %.2f\n", out.ClusterID, suffix, out.Similarity)
	}
	if out.Topic != "" {
		fmt.Fprintf(w, "Topic:      %s\n", out.Topic)
	}
	fmt.Fprintf(w, "Method:     %s\n", out.SelectionMethod)
	if out.EnhancementText == "" {
		fmt.Fprintln(w, "\nNo enhancement yet.")
		return nil
	}
	fmt.Fprintf(w, "\n%s\n", out.EnhancementText)
	return nil
}
