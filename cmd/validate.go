package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mammothweb/mammoth/internal/config"
	merrors "github.com/mammothweb/mammoth/internal/errors"
)

var (
	validateStrict  bool
	validateNoFiles bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and everything it references",
	Long: `Parse the configuration, run the structural checks, and verify every
referenced path: the module directory, each module library, static
directories, and TLS material.

Unlike serve, which degrades around problems, validate prints the complete
report with one line per finding and exits non-zero when anything at error
severity was found.

Examples:
  mammoth validate                     # Full check
  mammoth validate --strict            # Warnings fail too
  mammoth validate --no-files          # Structure only, skip the filesystem`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateStrict, "strict", false, "Treat warnings as errors")
	validateCmd.Flags().BoolVar(&validateNoFiles, "no-files", false, "Skip filesystem checks")
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Parse(viper.GetViper())
	if err != nil {
		return err
	}

	collector := merrors.NewCollector()
	cfg.Validate(collector)
	if !validateNoFiles {
		cfg.ValidateFiles(collector)
	}

	events := collector.Events()
	for _, event := range events {
		fmt.Println(event.String())
	}

	threshold := merrors.SeverityError
	if validateStrict {
		threshold = merrors.SeverityWarning
	}

	failing := 0
	for _, event := range events {
		if event.Severity >= threshold {
			failing++
		}
	}
	if failing > 0 {
		return fmt.Errorf("configuration is not valid: %d finding(s) at or above %s",
			failing, threshold.Name())
	}

	if len(events) > 0 {
		fmt.Printf("Configuration OK with %d finding(s) below %s\n", len(events), threshold.Name())
	} else {
		fmt.Println("Configuration OK")
	}
	return nil
}
