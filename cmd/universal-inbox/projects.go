package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/nhle/universal-inbox/internal/model"
	"github.com/nhle/universal-inbox/internal/store"
)

func projectsCommand() *cli.Command {
	return &cli.Command{
		Name:  "projects",
		Usage: "Browse the projects of the task tracker",
		Subcommands: []*cli.Command{
			{
				Name:      "search",
				Usage:     "Find tracker projects by name",
				ArgsUsage: "PATTERN",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "user",
						Aliases:  []string{"u"},
						Usage:    "Owner of the tracker connection",
						Required: true,
					},
				},
				Action: withApplication(searchProjects),
			},
		},
	}
}

func searchProjects(c *cli.Context, app *application) error {
	pattern := c.Args().Get(0)

	var projects []model.ProjectSummary
	err := app.db.InTx(c.Context, func(tx *store.Tx) error {
		var err error
		projects, err = app.services.Tasks.SearchProjects(c.Context, tx, pattern, c.String("user"))
		return err
	})
	if err != nil {
		return err
	}
	return printProjects(c.App.Writer, projects)
}

func printProjects(w io.Writer, projects []model.ProjectSummary) error {
	if len(projects) == 0 {
		fmt.Fprintln(w, "No projects.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME")
	for _, p := range projects {
		fmt.Fprintf(tw, "%s\t%s\n", p.SourceID, p.Name)
	}
	return tw.Flush()
}
