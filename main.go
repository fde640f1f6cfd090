package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/binlay/binlay/config"
	"github.com/binlay/binlay/diag"
	"github.com/binlay/binlay/process"
)

// Version information - can be overridden at build time with:
// go build -ldflags "-X main.Version=v1.2.3"
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		showVersion = flag.Bool("version", false, "Show version information")
		showHelp    = flag.Bool("help", false, "Show help information")
		outputFile  = flag.String("o", "output.bin", "Output file path")
		verboseMode = flag.Bool("verbose", false, "Verbose output (stage dumps to stderr)")
		dumpAST     = flag.String("dump-ast", "", "Write the syntax tree in Graphviz format to this file")
		configPath  = flag.String("config", "", "Configuration file path (default: platform config dir)")
		noColor     = flag.Bool("no-color", false, "Disable colored diagnostics")
	)

	flag.Parse()

	if *showVersion {
		fmt.Printf("binlay %s\n", Version)
		if Commit != "unknown" {
			fmt.Printf("Commit: %s\n", Commit)
		}
		return 0
	}

	if *showHelp || flag.NArg() == 0 {
		printHelp()
		return 0
	}

	srcFile := flag.Arg(0)
	source, err := os.ReadFile(srcFile) // #nosec G304 -- user supplied source path
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to read from file %s: %v\n", srcFile, err)
		return 1
	}

	diags := diag.New(srcFile, string(source))

	cfg, err := loadConfig(*configPath, diags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	diags.SetColor(cfg.Display.ColorOutput && !*noColor)

	out, err := os.Create(*outputFile) // #nosec G304 -- user supplied output path
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Unable to create output file %s: %v\n", *outputFile, err)
		return 1
	}
	defer out.Close()

	opts := process.Options{
		Console:       os.Stdout,
		Verbose:       *verboseMode || cfg.Display.Verbose,
		Trace:         os.Stderr,
		MaxIterations: cfg.Limits.MaxIterations,
		MaxErrors:     cfg.Limits.MaxErrors,
		MaxDepth:      cfg.Limits.MaxRecursionDepth,
	}

	astPath := *dumpAST
	if astPath == "" && cfg.Dump.Enabled {
		astPath = cfg.Dump.ASTFile
	}
	if astPath != "" {
		astFile, err := os.Create(astPath) // #nosec G304 -- user supplied dump path
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: Unable to create dump file %s: %v\n", astPath, err)
			return 1
		}
		defer astFile.Close()
		opts.DumpAST = astFile
	}

	if err := process.Run(string(source), diags, out, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error %v\n", err)
		var stageErr *process.StageError
		if errors.As(err, &stageErr) {
			return stageErr.ExitCode()
		}
		return 1
	}
	return 0
}

// loadConfig loads an explicitly named config file with fallback
// warnings, or the default file silently.
func loadConfig(path string, d *diag.Diags) (*config.Config, error) {
	if path != "" {
		return config.LoadFrom(path, d)
	}
	return config.Load()
}

func printHelp() {
	fmt.Println("binlay - declarative binary layout compiler")
	fmt.Println()
	fmt.Println("Usage: binlay [options] <source file>")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Example:")
	fmt.Println("  binlay -o image.bin layout.lay")
}
