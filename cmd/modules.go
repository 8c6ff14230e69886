package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mammothweb/mammoth/internal/config"
	"github.com/mammothweb/mammoth/internal/hosts"
	"github.com/mammothweb/mammoth/internal/loader"
	"github.com/mammothweb/mammoth/internal/logging"
	"github.com/mammothweb/mammoth/internal/registry"
)

var modulesFormat string

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "Load every declared module and report what serve would run",
	Long: `Perform the same module loading pass as serve, without opening any
listeners, and report the outcome per module: the version it declares,
whether it loaded, and the library it came from.

The host table below the module list shows the effective module order each
host would dispatch to, after applying per-host enable and disable
overrides.

Examples:
  mammoth modules                 # Table output
  mammoth modules --format json   # Machine-readable output`,
	RunE: runModules,
}

func init() {
	rootCmd.AddCommand(modulesCmd)

	modulesCmd.Flags().StringVarP(&modulesFormat, "format", "f", "text", "Output format (text, json)")
}

type moduleReport struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	Enabled bool   `json:"enabled"`
	Status  string `json:"status"`
	Path    string `json:"path"`
	Error   string `json:"error,omitempty"`
}

type hostReport struct {
	Host      string   `json:"host"`
	StaticDir string   `json:"static_dir,omitempty"`
	Modules   []string `json:"modules"`
}

func runModules(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	// Loading is chatty at info level; for a listing command the table is
	// the report, so only real problems get log lines.
	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.LevelError
	logCfg.Output = os.Stderr
	logger := logging.NewLogger(logCfg)

	ctx := context.Background()

	ld := loader.New(cfg.Mammoth.ModsDir, logger, logger.Slog())
	reg := registry.New()

	moduleReports := make([]moduleReport, 0, len(cfg.Modules))
	for _, mc := range cfg.Modules {
		report := moduleReport{
			Name:    mc.Name,
			Enabled: mc.IsEnabled(),
			Path:    mc.Path(cfg.Mammoth.ModsDir),
			Status:  "ok",
		}

		lm, err := ld.Load(ctx, mc)
		if err != nil {
			report.Status = "failed"
			report.Error = err.Error()
		} else {
			report.Version = lm.Version.String()
			if err := reg.Register(lm); err != nil {
				report.Status = "failed"
				report.Error = err.Error()
			}
		}
		moduleReports = append(moduleReports, report)
	}

	binder := hosts.NewBinder(reg, logger)
	bound := binder.BindAll(ctx, cfg.Hosts)

	hostReports := make([]hostReport, 0, len(bound))
	for _, bh := range bound {
		hostReports = append(hostReports, hostReport{
			Host:      bh.Identity(),
			StaticDir: bh.Config.StaticDir,
			Modules:   bh.ModuleNames(),
		})
	}

	// The modules were constructed for inspection only; let them release
	// whatever they grabbed before the process exits.
	defer shutdownInspected(reg, logger)

	switch modulesFormat {
	case "json":
		return outputModulesJSON(moduleReports, hostReports)
	case "text":
		return outputModulesTable(moduleReports, hostReports)
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, json)", modulesFormat)
	}
}

func shutdownInspected(reg *registry.Registry, logger logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := reg.Shutdown(ctx, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: module shutdown: %v\n", err)
	}
}

func outputModulesJSON(modules []moduleReport, hostTable []hostReport) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(map[string]interface{}{
		"modules": modules,
		"hosts":   hostTable,
	})
}

func outputModulesTable(modules []moduleReport, hostTable []hostReport) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "NAME\tVERSION\tENABLED\tSTATUS\tPATH")
	fmt.Fprintln(w, "----\t-------\t-------\t------\t----")
	for _, m := range modules {
		version := m.Version
		if version == "" {
			version = "-"
		}
		enabled := "yes"
		if !m.Enabled {
			enabled = "no"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.Name, version, enabled, m.Status, m.Path)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "HOST\tMODULES")
	fmt.Fprintln(w, "----\t-------")
	for _, h := range hostTable {
		names := strings.Join(h.Modules, ", ")
		if names == "" {
			if h.StaticDir != "" {
				names = "(static only)"
			} else {
				names = "(none)"
			}
		}
		fmt.Fprintf(w, "%s\t%s\n", h.Host, names)
	}

	if err := w.Flush(); err != nil {
		return err
	}

	failed := false
	for _, m := range modules {
		if m.Error != "" {
			if !failed {
				fmt.Println("\nFailures:")
				failed = true
			}
			fmt.Printf("  %s: %s\n", m.Name, m.Error)
		}
	}
	return nil
}
