// cmd/chartex/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/valeran/chartex/internal/config"
	"github.com/valeran/chartex/internal/output"
	"github.com/valeran/chartex/pkg/api"
)

// Version information (set by build flags)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "run":
		if len(os.Args) < 4 {
			fmt.Fprintf(os.Stderr, "Error: config file and URL required\n")
			fmt.Fprintf(os.Stderr, "Usage: chartex run <config.yaml> <url> [--output file] [--format json|csv|xlsx]\n")
			os.Exit(1)
		}
		if err := runExtraction(os.Args[2], os.Args[3], os.Args[4:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "validate":
		if len(os.Args) < 3 {
			fmt.Fprintf(os.Stderr, "Error: config file required\n")
			fmt.Fprintf(os.Stderr, "Usage: chartex validate <config.yaml>\n")
			os.Exit(1)
		}
		if err := validateConfig(os.Args[2]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "template":
		doc, err := generateTemplate()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(doc)

	case "version", "--version", "-v":
		printVersion()

	case "help", "--help", "-h":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command '%s'\n", command)
		printUsage()
		os.Exit(1)
	}
}

// runExtraction executes one extraction end to end and writes the result.
func runExtraction(configFile, url string, args []string) error {
	outFile, formatName := parseRunFlags(args)
	format, err := output.ParseFormat(formatName)
	if err != nil {
		return err
	}

	cfg, err := config.LoadFromFile(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx := context.Background()
	engine, err := api.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer engine.Close()

	result, err := engine.ExtractURL(ctx, url, api.Options{})
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	if outFile == "" {
		if format == output.FormatXLSX {
			return fmt.Errorf("xlsx output requires --output <file>")
		}
		return output.Write(os.Stdout, result, format)
	}
	if err := output.WriteFile(outFile, result, format); err != nil {
		return err
	}
	fmt.Printf("Extracted %d records (%s, confidence %.2f). Results saved to %s\n",
		result.ActualCount, result.Status, result.Confidence, outFile)
	return nil
}

// validateConfig loads the configuration and reports its key settings.
func validateConfig(configFile string) error {
	cfg, err := config.LoadFromFile(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Printf("✓ Configuration file '%s' is valid\n", configFile)
	fmt.Printf("  Name: %s\n", cfg.Name)
	fmt.Printf("  Storage backend: %s\n", cfg.Storage.Backend)
	fmt.Printf("  Max retries: %d\n", cfg.Extraction.MaxRetries)
	fmt.Printf("  Min confidence: %.2f\n", cfg.Extraction.Limits.MinConfidence)
	return nil
}

// generateTemplate prints a starter configuration as YAML.
func generateTemplate() (string, error) {
	cfg := config.Default()
	cfg.Name = "my-extractor"
	cfg.Description = "Song list extraction configuration"

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal template to YAML: %w", err)
	}
	return string(data), nil
}

// parseRunFlags extracts --output and --format from the trailing args.
func parseRunFlags(args []string) (outFile, format string) {
	for i := 0; i < len(args); i++ {
		switch {
		case (args[i] == "--output" || args[i] == "-o") && i+1 < len(args):
			outFile = args[i+1]
			i++
		case (args[i] == "--format" || args[i] == "-f") && i+1 < len(args):
			format = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--output="):
			outFile = strings.TrimPrefix(args[i], "--output=")
		case strings.HasPrefix(args[i], "--format="):
			format = strings.TrimPrefix(args[i], "--format=")
		}
	}
	return outFile, format
}

func printVersion() {
	fmt.Printf("chartex %s\n", version)
	fmt.Printf("  build time: %s\n", buildTime)
	fmt.Printf("  git commit: %s\n", gitCommit)
}

func printUsage() {
	fmt.Println("chartex - adaptive song list extraction engine")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  chartex run <config.yaml> <url> [--output file] [--format json|csv|xlsx]")
	fmt.Println("  chartex validate <config.yaml>")
	fmt.Println("  chartex template")
	fmt.Println("  chartex version")
	fmt.Println("  chartex help")
}
