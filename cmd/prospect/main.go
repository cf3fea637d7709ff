package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/prospect/internal/common"
)

var (
	configPath   = flag.String("config", "", "Configuration file path")
	configPathC  = flag.String("c", "", "Configuration file path (shorthand)")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")

	config *common.Config
	logger arbor.ILogger
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: prospect [flags] <command>

Commands:
  serve     Run the pipeline: workers, recovery sweep, and scheduler (default)
  enqueue   Add one work item to the queue
  version   Print version information

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Prospect version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	command := flag.Arg(0)
	if command == "" {
		command = "serve"
	}
	if command == "version" {
		fmt.Printf("Prospect version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	// Startup order: config, logger, banner. Flag overrides shorthand.
	path := *configPath
	if *configPathC != "" {
		path = *configPathC
	}
	if path == "" {
		if _, err := os.Stat("prospect.toml"); err == nil {
			path = "prospect.toml"
		}
	}

	var err error
	config, err = common.LoadConfig(path)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Err(err).Str("path", path).Msg("Failed to load configuration")
		os.Exit(1)
	}

	logger = common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	logger.Info().
		Str("config", path).
		Str("environment", config.Environment).
		Msg("Configuration loaded")

	switch command {
	case "serve":
		runServe()
	case "enqueue":
		runEnqueue(flag.Args()[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", command)
		usage()
		os.Exit(2)
	}
}
