// Package cli implements the conquest command line interface. Commands
// operate directly on the catalog file; serve and listen run the long-lived
// network surfaces.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dicomtk/conquestdb/internal/common/logging"
	"github.com/dicomtk/conquestdb/internal/conquest/config"
	"github.com/dicomtk/conquestdb/internal/conquest/schema"
	"github.com/dicomtk/conquestdb/internal/conquest/store"
)

var (
	// Global flags
	jsonOutput bool
	configFile string
)

var ErrAlreadyHandled = errors.New("already handled")

var okLabel = color.New(color.FgGreen)
var errorLabel = color.New(color.FgRed)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "conquest [command] [flags]",
	Short: "Conquest catalog CLI - index, query and move DICOM objects",
	Long: `Conquest catalog CLI manages a conquest-compatible DICOM catalog:
a sqlite database over a per-patient file tree.

Examples:
  # Index every patient directory under the data root
  conquest rebuild

  # Show per-patient series counts by modality
  conquest summary --orderby CT

  # Delete all CT series, keeping the files on disk
  conquest delete --query "SELECT SeriesInst FROM DICOMseries WHERE Modality='CT'"

  # Send one series to a remote node
  conquest send --series 1.2.840.1.1 --host pacs --port 104 --called-ae PACS`,
	PersistentPreRun: preRunHandlePersistents,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func preRunHandlePersistents(cmd *cobra.Command, args []string) {
	logging.Init()
	if configFile == config.DefaultConfigFile {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			config.InitDefaults()
			return
		}
	}
	if err := config.LoadConfig(configFile); err != nil {
		errorLabel.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logging.SetLevel(config.Config().LogLevel)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "", config.DefaultConfigFile, "Path to configuration file to override default")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output in JSON format")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newRebuildCmd())
	rootCmd.AddCommand(newDeleteCmd())
	rootCmd.AddCommand(newCopyCmd())
	rootCmd.AddCommand(newSendCmd())
	rootCmd.AddCommand(newSummaryCmd())
	rootCmd.AddCommand(newQueryCmd())
	rootCmd.AddCommand(newStoreCmd())
	rootCmd.AddCommand(newListenCmd())
	rootCmd.AddCommand(newServeCmd())
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	err := rootCmd.Execute()
	if err != nil {
		if errors.Is(err, ErrAlreadyHandled) {
			os.Exit(1)
		}
		if jsonOutput {
			printJSON(map[string]string{"error": err.Error()})
		} else {
			errorLabel.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		errorLabel.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	fmt.Println(string(out))
}

// openCatalog loads the schema and opens the catalog per the active config.
func openCatalog(ctx context.Context) (*store.Catalog, error) {
	cfg := config.Config()
	s, err := schema.Load(cfg.SchemaFile, cfg.TruncateColumnNames)
	if err != nil {
		return nil, fmt.Errorf("loading schema: %w", err)
	}
	for _, w := range s.Warnings() {
		log.Ctx(ctx).Warn().Str("warning", w).Msg("schema definition")
	}
	c, aerr := store.Open(ctx, cfg.DatabaseFile, s)
	if aerr != nil {
		return nil, fmt.Errorf("opening catalog: %w", aerr)
	}
	return c, nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	return log.Logger.WithContext(cmd.Context())
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the conquest CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput {
				printJSON(map[string]string{"version": Version})
				return
			}
			fmt.Println("conquest " + Version)
		},
	}
}
