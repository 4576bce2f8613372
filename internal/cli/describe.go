package cli

import (
	"encoding/json"
	"fmt"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/project-kessel/userclaims/internal/mapper"
)

// NewDescribeCmd creates the describe command
func NewDescribeCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "describe",
		Short: "Print the user directory mapper descriptor",
		Long: `Print the descriptor of the user directory claim mapper: its id, display
type, configuration properties with their defaults, and the token types it
can contribute claims to.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			descriptor := mapper.DirectoryDescriptor()

			var (
				data []byte
				err  error
			)
			switch output {
			case "yaml":
				data, err = yaml.Marshal(descriptor)
			case "json":
				data, err = json.MarshalIndent(descriptor, "", "  ")
				data = append(data, '\n')
			default:
				return fmt.Errorf("unknown output format: %s (supported: yaml, json)", output)
			}
			if err != nil {
				return fmt.Errorf("failed to encode descriptor: %w", err)
			}

			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "output format: yaml, json")

	return cmd
}
