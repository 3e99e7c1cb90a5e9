// Package main provides qaharness, the end-to-end browser test runner.
// It prepares the artifacts tree, launches the configured browser engine and
// runs the registered scenarios with the runner policies from config.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/entrhq/qaharness/pkg/browser"
	"github.com/entrhq/qaharness/pkg/config"
	"github.com/entrhq/qaharness/pkg/harness"
)

const version = "0.1.0"

// patternList collects repeated -grep flags.
type patternList []string

func (p *patternList) String() string { return strings.Join(*p, ",") }

func (p *patternList) Set(v string) error {
	*p = append(*p, v)
	return nil
}

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigFile  string
	EnvFile     string
	Grep        patternList
	LayoutOnly  bool
	FileName    string
	PagePath    string
	ShowVersion bool
}

func main() {
	cli := parseFlags()

	if cli.ShowVersion {
		fmt.Printf("qaharness v%s\n", version)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n\nShutting down gracefully...")
		cancel()
	}()

	ok, err := run(ctx, cli)
	cancel()
	if err != nil {
		log.Printf("Run failed: %v", err)
		os.Exit(1)
	}
	if !ok {
		os.Exit(1)
	}
}

// parseFlags parses command line flags
func parseFlags() *CLIConfig {
	cli := &CLIConfig{}

	flag.StringVar(&cli.ConfigFile, "config", "", "Path to configuration file (YAML)")
	flag.StringVar(&cli.EnvFile, "env-file", ".env", "Dotenv file with environment overrides")
	flag.Var(&cli.Grep, "grep", "Glob over scenario names and tags (repeatable)")
	flag.BoolVar(&cli.LayoutOnly, "layout-only", false, "Prepare the artifacts tree and exit")
	flag.StringVar(&cli.FileName, "file", "sample.pdf", "File name the download scenario saves")
	flag.StringVar(&cli.PagePath, "path", "/", "Path of the download page, relative to base_url")
	flag.BoolVar(&cli.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "qaharness - end-to-end browser test runner\n\n")
		fmt.Fprintf(os.Stderr, "Usage: qaharness [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Only prepare .artifacts\n")
		fmt.Fprintf(os.Stderr, "  qaharness -layout-only\n\n")
		fmt.Fprintf(os.Stderr, "  # Download a file from a staging site\n")
		fmt.Fprintf(os.Stderr, "  BASE_URL=https://staging.example.com qaharness -path /downloads -file report.pdf\n\n")
		fmt.Fprintf(os.Stderr, "  # Run smoke scenarios with rod\n")
		fmt.Fprintf(os.Stderr, "  BROWSER_ENGINE=rod qaharness -grep '@smoke'\n\n")
	}

	flag.Parse()
	return cli
}

// run prepares the layout and runs the suite. It reports whether every
// selected scenario passed.
func run(ctx context.Context, cli *CLIConfig) (bool, error) {
	cfg, err := config.Load(cli.ConfigFile, cli.EnvFile)
	if err != nil {
		return false, fmt.Errorf("failed to load configuration: %w", err)
	}

	layout, logger, err := harness.Setup(cfg)
	if err != nil {
		return false, err
	}
	defer logger.Close()

	if cli.LayoutOnly {
		fmt.Printf("Artifacts ready in %s\n", layout.Root)
		return true, nil
	}

	driver, err := browser.NewDriver(cfg, layout, logger.With("browser"))
	if err != nil {
		return false, fmt.Errorf("failed to start browser: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			// Closing the driver fails pending actions so workers return.
			logger.Warnf("interrupted, closing browser")
			_ = driver.Close()
		case <-done:
		}
	}()
	defer func() {
		if err := driver.Close(); err != nil {
			logger.Warnf("browser shutdown: %v", err)
		}
	}()

	console := harness.NewConsole(harness.ParseLevel(cfg.Logging.Verbosity), os.Stdout)
	suite := harness.NewSuite(cfg, layout, driver,
		harness.WithLogger(logger),
		harness.WithConsole(console),
	)
	suite.Register(downloadScenario(cli.PagePath, cli.FileName))

	summary, err := suite.Run(cli.Grep)
	if err != nil {
		return false, err
	}
	logger.Infof("report written to %s", layout.ReportResults())
	return summary.OK(), nil
}
