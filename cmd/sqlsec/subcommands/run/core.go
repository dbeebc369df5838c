//
//  Copyright © Manetu Inc. All rights reserved.
//

package run

import (
	"context"

	"github.com/manetu/sqlsecurity/pkg/config"
	"github.com/manetu/sqlsecurity/pkg/scenario"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
)

// Execute runs the security scenarios against the configured cluster and
// verifies the audit trail each one leaves.
func Execute(ctx context.Context, cmd *cli.Command) error {
	if err := config.Load(); err != nil {
		return err
	}

	// flags win over the configuration file and environment
	if u := cmd.String("url"); u != "" {
		config.VConfig.Set(config.ClusterURL, u)
	}
	if p := cmd.String("logfile"); p != "" {
		config.VConfig.Set(config.AuditLogFile, p)
	}

	fixture, err := scenario.NewFixtureFromConfig()
	if err != nil {
		return err
	}

	catalog := scenario.DefaultCatalog()
	if path := cmd.String("catalog"); path != "" {
		catalog, err = scenario.LoadCatalog(path)
		if err != nil {
			return errors.Wrap(err, "failed to load scenarios")
		}
	}

	runner := scenario.NewRunner(fixture, catalog)
	runner.SetOut(cmd.Root().Writer)

	results, err := runner.Run(ctx, cmd.StringSlice("scenario"))
	if err != nil {
		return err
	}

	if scenario.Failed(results) > 0 {
		return cli.Exit("", 1)
	}
	return nil
}
