package admin

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/tutorfit/internal/database"
)

// MigrateCmd applies schema migrations without starting the server, for
// deployments that run `serve --no-migrate`.
func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		Example: `  tutorfitd migrate
  tutorfitd migrate --source file:///opt/tutorfit/migrations`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			source, _ := cmd.Flags().GetString("source")

			cfg, logger, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			if err := database.Migrate(cfg.DatabaseURL, source, logger); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}

	cmd.Flags().String("source", database.DefaultMigrationsSource, "golang-migrate source URL")

	return cmd
}
