package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/anicoll/homehub/cmd"
)

func main() {
	app := &cli.App{
		Name:   "homehub",
		Usage:  "home automation hub for gateways, variables and scripts",
		Action: cmd.HubCommand,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "INFO",
			},
			&cli.StringFlag{
				Name:    "http-addr",
				EnvVars: []string{"HTTP_ADDR"},
				Value:   "0.0.0.0:8000",
			},
			&cli.StringFlag{
				Name:    "database-url",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "migrations-folder",
				EnvVars: []string{"MIGRATIONS_FOLDER"},
			},
			&cli.StringFlag{
				Name:    "scripts-file",
				EnvVars: []string{"SCRIPTS_FILE"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "hash-password",
				Usage:     "print the bcrypt hash to use as AUTH_PASSWORD_HASH",
				ArgsUsage: "<password>",
				Action:    cmd.HashPasswordCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
