//
//  Copyright © Manetu Inc. All rights reserved.
//

package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/manetu/sqlsecurity/cmd/sqlsec/subcommands/audit"
	"github.com/manetu/sqlsecurity/cmd/sqlsec/subcommands/fake"
	"github.com/manetu/sqlsecurity/cmd/sqlsec/subcommands/run"
	"github.com/manetu/sqlsecurity/cmd/sqlsec/version"
	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:    "sqlsec",
		Usage:   "Verifies the access control and security audit trail of a cluster's SQL endpoint",
		Version: version.GetVersion(),
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Runs the security scenarios and checks the audit events each one produces",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "scenario",
						Aliases: []string{"s"},
						Usage:   "Run only scenarios matching `GLOB`.  Can be specified multiple times.",
					},
					&cli.StringFlag{
						Name:    "catalog",
						Aliases: []string{"c"},
						Usage:   "Load scenarios from `FILE` instead of the built-in catalog",
					},
					&cli.StringFlag{
						Name:  "url",
						Usage: "Base URL of the cluster.  Overrides cluster.url.",
					},
					&cli.StringFlag{
						Name:    "logfile",
						Aliases: []string{"l"},
						Usage:   "The cluster's audit log `FILE`.  Overrides audit.logfile.",
					},
				},
				Action: run.Execute,
			},
			{
				Name:  "audit",
				Usage: "Inspects security audit logs",
				Commands: []*cli.Command{
					{
						Name:  "parse",
						Usage: "Decodes an audit log and prints its events as JSON",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "input",
								Aliases:  []string{"i"},
								Usage:    "Load audit log from `FILE`, or use '-' for stdin",
								Required: true,
							},
							&cli.BoolFlag{
								Name:    "monitored",
								Aliases: []string{"m"},
								Usage:   "Print only access decisions on SQL actions, as assertions see them",
							},
						},
						Action: audit.ExecuteParse,
					},
					{
						Name:  "tail",
						Usage: "Follows an audit log and prints events as they are written",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "input",
								Aliases:  []string{"i"},
								Usage:    "Follow audit log `FILE`",
								Required: true,
							},
							&cli.BoolFlag{
								Name:  "from-start",
								Usage: "Print the events already in the log first",
							},
						},
						Action: audit.ExecuteTail,
					},
				},
			},
			{
				Name:  "fake",
				Usage: "Runs an in-process cluster for developing scenarios",
				Commands: []*cli.Command{
					{
						Name:  "serve",
						Usage: "Serves the SQL, user and bulk APIs with role enforcement and an audit log",
						Flags: []cli.Flag{
							&cli.IntFlag{
								Name:  "port",
								Usage: "The TCP port to serve on.  Overrides fake.port.",
								Value: 9200,
							},
							&cli.StringFlag{
								Name:    "audit-file",
								Aliases: []string{"a"},
								Usage:   "Append audit events to `FILE` instead of stdout.  Overrides fake.auditfile.",
							},
							&cli.DurationFlag{
								Name:  "audit-delay",
								Usage: "Delay before each audit event is written",
							},
						},
						Action: fake.Execute,
					},
				},
			},
			{
				Name:  "version",
				Usage: "Prints the version",
				Action: func(_ context.Context, cmd *cli.Command) error {
					_, err := fmt.Fprintln(cmd.Root().Writer, version.GetVersion())
					return err
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
