// Package commands implements the enquirywitch command line.
package commands

import (
	"context"
	"fmt"

	cli "github.com/urfave/cli/v3"
)

// Version is set at build time.
var Version = "0.1.0-dev"

func usageErrorHandler(_ context.Context, _ *cli.Command, err error, _ bool) error {
	return err
}

// App builds the command tree.
func App() *cli.Command {
	return &cli.Command{
		Name:            "enquirywitch",
		Usage:           "serves interactive stories that end in an enquiry form",
		Version:         Version,
		HideHelpCommand: true,
		Before:          Before,
		After:           After,
		OnUsageError:    usageErrorHandler,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "load configuration from `FILE` (YAML)"},
			&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: "verbose logging and the author playground"},
		},
		Commands: []*cli.Command{
			{
				Name:      "serve",
				Usage:     "Serves a story over HTTP",
				Action:    Serve,
				ArgsUsage: "STORY",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "watch", Aliases: []string{"w"}, Usage: "reload the story and connected browsers when its files change"},
					&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "listen on `PORT`"},
					&cli.StringFlag{Name: "host", Usage: "listen on `HOST`"},
				},
				CustomHelpTemplate: fmt.Sprintf(`%s
STORY:
    a Twine HTML file or a directory of passage .md files
    if absent - story.path from the configuration
`, cli.CommandHelpTemplate),
			},
			{
				Name:      "render",
				Usage:     "Prints the HTML of one passage",
				Action:    Render,
				ArgsUsage: "STORY PASSAGE",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "state", Usage: "story variables from JSON `FILE`"},
					&cli.StringFlag{Name: "formdata", Usage: "form data from JSON `FILE` (array of single-key objects)"},
				},
			},
			{
				Name:      "validate",
				Usage:     "Checks a story for links to missing passages",
				Action:    Validate,
				ArgsUsage: "STORY",
			},
			{
				Name:  "dumpconfig",
				Usage: "Dumps either default or actual configuration (YAML)",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "default", Usage: "output default configuration"},
				},
				Action:    DumpConfig,
				ArgsUsage: "DESTINATION",
			},
		},
	}
}
