package admin

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/cloo-solutions/tutorfit/internal/service"
)

// seedFile is the YAML layout accepted by seed-templates. content is either
// a string or a mapping of structure flags.
type seedFile struct {
	Templates []seedEntry `yaml:"templates"`
}

type seedEntry struct {
	Topic    string         `yaml:"topic"`
	Content  any            `yaml:"content"`
	Metadata map[string]any `yaml:"metadata"`
}

// SeedCmd returns the seed-templates command
func SeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed-templates",
		Short: "Load templates from a YAML file",
		Example: `  tutorfitd seed-templates --file templates.yaml

  # templates.yaml
  templates:
    - topic: physics
      content: "Start from an everyday example."
    - topic: chemistry
      content: {has_analogy: true, has_key_takeaways: true}`,
		RunE: runSeed,
	}

	cmd.Flags().StringP("file", "f", "", "YAML file to load (- for stdin)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	path, _ := cmd.Flags().GetString("file")
	seeds, err := readSeeds(cmd.InOrStdin(), path)
	if err != nil {
		return err
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

	result, err := a.templates.Seed(ctx, seeds)
	if err != nil {
		return err
	}

	logger.Info("templates seeded", zap.Int("created", result.Created), zap.Int("skipped", result.Skipped))
	fmt.Fprintf(cmd.OutOrStdout(), "created %d templates, skipped %d\n", result.Created, result.Skipped)
	return nil
}

func readSeeds(stdin io.Reader, path string) ([]service.TemplateSeed, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return parseSeeds(data)
}

func parseSeeds(data []byte) ([]service.TemplateSeed, error) {
	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	seeds := make([]service.TemplateSeed, 0, len(file.Templates))
	for i, entry := range file.Templates {
		var content string
		switch v := entry.Content.(type) {
		case string:
			content = v
		case map[string]any:
			b, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("template %d: %w", i, err)
			}
			content = string(b)
		case nil:
			return nil, fmt.Errorf("template %d: content is required", i)
		default:
			return nil, fmt.Errorf("template %d: content must be a string or a mapping", i)
		}
		seeds = append(seeds, service.TemplateSeed{
			Topic:    entry.Topic,
			Content:  content,
			Metadata: entry.Metadata,
		})
	}
	return seeds, nil
}
