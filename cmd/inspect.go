// cmd/inspect.go - Archive inspection command
package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/valpere/tiledeck/internal/archive"
	"github.com/valpere/tiledeck/internal/output"
	"github.com/valpere/tiledeck/internal/telemetry"
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect [archive]",
	Short: "Report an MBTiles archive's metadata and embedded run summary",
	Long: `Inspect opens an MBTiles archive and reports its standard metadata
table plus, when the archive was produced by "tiledeck pack", the
embedded per-zoom telemetry summary from that run.

Examples:
  tiledeck inspect tiles.mbtiles
  tiledeck inspect tiles.mbtiles --format json --pretty`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().StringP("output", "o", "-", "output destination, '-' for stdout")
}

func runInspect(cmd *cobra.Command, args []string) error {
	archivePath := args[0]
	destination, _ := cmd.Flags().GetString("output")
	format := viper.GetString("output.format")
	pretty := viper.GetBool("output.pretty")
	compression := viper.GetBool("output.compression")

	metadata, extra, err := archive.ReadMetadata(archivePath)
	if err != nil {
		return fmt.Errorf("failed to read archive metadata: %w", err)
	}

	report := &output.Report{
		ArchivePath: archivePath,
		Metadata:    metadata,
	}

	if raw, ok := extra[telemetry.SummaryMetadataKey]; ok {
		var summary telemetry.Summary
		if err := json.Unmarshal([]byte(raw), &summary); err == nil {
			report.Summary = &summary
		}
	}

	writer, err := output.NewWriter(&output.WriterConfig{
		Format:      output.Format(format),
		Pretty:      pretty,
		Compression: compression,
	}, destination)
	if err != nil {
		return fmt.Errorf("failed to create output writer: %w", err)
	}
	defer writer.Close()

	if err := writer.Write(report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return nil
}
