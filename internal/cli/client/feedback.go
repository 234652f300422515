package client

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

// FeedbackRequest represents the feedback API request.
type FeedbackRequest struct {
	FeedbackText string `json:"feedback_text"`
	ResponseText string `json:"response_text,omitempty"`
}

// FeedbackCmd creates the feedback command.
func FeedbackCmd() *cobra.Command {
	var response string

	cmd := &cobra.Command{
		Use:   "feedback <assignment-id> <text>",
		Short: "Send learner feedback for an assignment",
		Long:  "Queues learner feedback. It is analyzed asynchronously.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			api := NewAPIClientWithCmd(cmd)

			path := "/assignments/" + url.PathEscape(args[0]) + "/feedback"
			if err := api.Post(cmd.Context(), path, FeedbackRequest{
				FeedbackText: args[1],
				ResponseText: response,
			}, nil); err != nil {
				return fmt.Errorf("feedback failed: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Feedback accepted.")
			return nil
		},
	}

	cmd.Flags().StringVar(&response, "response", "", "Tutor response the feedback refers to")

	return cmd
}
