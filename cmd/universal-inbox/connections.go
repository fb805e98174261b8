package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/nhle/universal-inbox/internal/model"
	"github.com/nhle/universal-inbox/internal/store"
)

func connectionsCommand() *cli.Command {
	userFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:     "user",
			Aliases:  []string{"u"},
			Usage:    "Owner of the connections",
			Required: true,
		}
	}

	return &cli.Command{
		Name:  "connections",
		Usage: "Manage provider connections",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List a user's connections",
				Flags:  []cli.Flag{userFlag()},
				Action: withApplication(listConnections),
			},
			{
				Name:  "add",
				Usage: "Connect a provider with an access token",
				Flags: []cli.Flag{
					userFlag(),
					&cli.StringFlag{Name: "provider", Aliases: []string{"p"}, Usage: "Provider to connect", Required: true},
					&cli.StringFlag{Name: "token", Usage: "Access token", Required: true, EnvVars: []string{model.EnvPrefix + "_TOKEN"}},
					&cli.StringFlag{Name: "provider-user-id", Usage: "Your user id in the provider"},
					&cli.StringFlag{Name: "settings", Usage: "Connection settings as `JSON`"},
				},
				Action: withApplication(addConnection),
			},
			{
				Name:      "configure",
				Usage:     "Replace the settings of a connection",
				ArgsUsage: "CONNECTION_ID",
				Flags: []cli.Flag{
					userFlag(),
					&cli.StringFlag{Name: "settings", Usage: "Connection settings as `JSON`", Required: true},
				},
				Action: withApplication(configureConnection),
			},
			{
				Name:      "disconnect",
				Usage:     "Forget the access token of a connection",
				ArgsUsage: "CONNECTION_ID",
				Flags:     []cli.Flag{userFlag()},
				Action:    withApplication(disconnect),
			},
		},
	}
}

func listConnections(c *cli.Context, app *application) error {
	var conns []model.IntegrationConnection
	err := app.db.InTx(c.Context, func(tx *store.Tx) error {
		var err error
		conns, err = app.conns.ListConnections(c.Context, tx, c.String("user"))
		return err
	})
	if err != nil {
		return err
	}
	if len(conns) == 0 {
		fmt.Fprintln(c.App.Writer, "No connections.")
		return nil
	}

	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPROVIDER\tSTATUS\tNOTIFICATIONS\tTASKS")
	for _, conn := range conns {
		status := string(conn.Status)
		if conn.FailureMessage != nil {
			status += ": " + *conn.FailureMessage
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", conn.ID, conn.ProviderKind, status,
			formatSync(conn.NotificationsSync), formatSync(conn.TasksSync))
	}
	return tw.Flush()
}

func addConnection(c *cli.Context, app *application) error {
	kind, err := model.ParseProviderKind(c.String("provider"))
	if err != nil {
		return err
	}
	settings, err := parseSettings(c.String("settings"))
	if err != nil {
		return err
	}
	var providerUserID *string
	if id := c.String("provider-user-id"); id != "" {
		providerUserID = &id
	}

	var conn *model.IntegrationConnection
	err = app.db.InTx(c.Context, func(tx *store.Tx) error {
		var err error
		conn, err = app.conns.CreateIntegrationConnection(c.Context, tx, c.String("user"), kind, settings)
		if err != nil {
			return err
		}
		return app.conns.StoreAccessToken(c.Context, tx, conn.ID, c.String("token"), providerUserID)
	})
	if err != nil {
		return fmt.Errorf("connecting %s: %w", kind, err)
	}

	fmt.Fprintf(c.App.Writer, "Connected %s (%s)\n", kind, conn.ID)
	return nil
}

func configureConnection(c *cli.Context, app *application) error {
	if c.NArg() < 1 {
		return fmt.Errorf("missing required argument: CONNECTION_ID")
	}
	settings, err := parseSettings(c.String("settings"))
	if err != nil {
		return err
	}
	if settings == nil {
		return fmt.Errorf("settings must not be empty")
	}

	return app.db.InTx(c.Context, func(tx *store.Tx) error {
		_, err := app.conns.UpdateConfig(c.Context, tx, c.Args().Get(0), *settings, c.String("user"))
		return err
	})
}

func disconnect(c *cli.Context, app *application) error {
	if c.NArg() < 1 {
		return fmt.Errorf("missing required argument: CONNECTION_ID")
	}
	id := c.Args().Get(0)

	return app.db.InTx(c.Context, func(tx *store.Tx) error {
		conns, err := app.conns.ListConnections(c.Context, tx, c.String("user"))
		if err != nil {
			return err
		}
		for _, conn := range conns {
			if conn.ID == id {
				return app.conns.DeleteAccessToken(c.Context, tx, id)
			}
		}
		return fmt.Errorf("connection %s: %w", id, store.ErrNotFound)
	})
}

// parseSettings returns nil for empty input, which selects the provider
// defaults.
func parseSettings(raw string) (*model.IntegrationConnectionConfig, error) {
	if raw == "" {
		return nil, nil
	}
	var settings model.IntegrationConnectionConfig
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return nil, fmt.Errorf("parsing settings: %w", err)
	}
	return &settings, nil
}
