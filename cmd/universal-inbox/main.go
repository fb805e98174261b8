package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/nhle/universal-inbox/internal/model"
)

const version = "0.1.0"

func main() {
	app := &cli.App{
		Name:    "universal-inbox",
		Usage:   "Sync notifications and tasks from your providers into one inbox",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				Value:   model.DefaultConfigPath(),
				EnvVars: []string{model.EnvPrefix + "_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override the configured log level",
			},
		},
		Commands: []*cli.Command{
			syncCommand(),
			runCommand(),
			connectionsCommand(),
			projectsCommand(),
			configCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
