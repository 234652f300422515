// Package cli provides shared CLI utilities for tutorfit and tutorfitd.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const helpJSONFlag = "help-json"

type FlagSchema struct {
	Name        string `json:"name"`
	Shorthand   string `json:"shorthand,omitempty"`
	Type        string `json:"type"`
	Default     string `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

// CommandSchema is the --help-json view of a command and its visible
// subcommands. PersistentFlags are listed once, on the command that
// declares them.
type CommandSchema struct {
	Name            string          `json:"name"`
	Use             string          `json:"use,omitempty"`
	Description     string          `json:"description,omitempty"`
	Long            string          `json:"long,omitempty"`
	Example         string          `json:"example,omitempty"`
	Aliases         []string        `json:"aliases,omitempty"`
	Flags           []FlagSchema    `json:"flags,omitempty"`
	PersistentFlags []FlagSchema    `json:"persistent_flags,omitempty"`
	Subcommands     []CommandSchema `json:"subcommands,omitempty"`
}

func GenerateSchema(cmd *cobra.Command) CommandSchema {
	s := CommandSchema{
		Name:            cmd.Name(),
		Use:             cmd.Use,
		Description:     cmd.Short,
		Long:            cmd.Long,
		Example:         cmd.Example,
		Aliases:         cmd.Aliases,
		Flags:           flagSchemas(cmd.LocalNonPersistentFlags()),
		PersistentFlags: flagSchemas(cmd.PersistentFlags()),
	}
	for _, sub := range cmd.Commands() {
		if sub.IsAvailableCommand() {
			s.Subcommands = append(s.Subcommands, GenerateSchema(sub))
		}
	}
	return s
}

func flagSchemas(fs *pflag.FlagSet) []FlagSchema {
	var out []FlagSchema
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Hidden || f.Name == "help" || f.Name == helpJSONFlag {
			return
		}
		// MarkFlagRequired records requirement as a flag annotation.
		_, required := f.Annotations[cobra.BashCompOneRequiredFlag]
		out = append(out, FlagSchema{
			Name:        f.Name,
			Shorthand:   f.Shorthand,
			Type:        f.Value.Type(),
			Default:     f.DefValue,
			Description: f.Usage,
			Required:    required,
		})
	})
	return out
}

func WriteSchema(w io.Writer, cmd *cobra.Command) error {
	out, err := json.MarshalIndent(GenerateSchema(cmd), "", "  ")
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func AddHelpJSONFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().Bool(helpJSONFlag, false, "Output command schema as JSON")
}

// HandleHelpJSON writes the schema of the command addressed by args when
// they contain --help-json, before cobra validates positional args. It
// reports whether it did so; callers then exit without executing.
func HandleHelpJSON(root *cobra.Command, args []string, w io.Writer) (bool, error) {
	for i, arg := range args {
		if arg != "--"+helpJSONFlag {
			continue
		}
		target, _, err := root.Find(args[:i])
		if err != nil || target == nil {
			target = root
		}
		return true, WriteSchema(w, target)
	}
	return false, nil
}
