//
//  Copyright © Manetu Inc. All rights reserved.
//

package fake

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/manetu/sqlsecurity/internal/fakecluster"
	"github.com/manetu/sqlsecurity/internal/logging"
	"github.com/manetu/sqlsecurity/pkg/auditlog"
	"github.com/manetu/sqlsecurity/pkg/config"
	"github.com/urfave/cli/v3"
)

var logger = logging.GetLogger("fakecluster")

const agent string = "serve"

// Execute serves an in-process cluster that enforces the scenario roles and
// writes a security audit log, until interrupted.  Without an audit file
// the log goes to stdout.
func Execute(ctx context.Context, cmd *cli.Command) error {
	if err := config.Load(); err != nil {
		return err
	}

	port := config.VConfig.GetInt(config.FakePort)
	if cmd.IsSet("port") {
		port = cmd.Int("port")
	}
	auditPath := config.VConfig.GetString(config.FakeAuditFile)
	if p := cmd.String("audit-file"); p != "" {
		auditPath = p
	}

	factory := auditlog.NewIoWriterFactory(cmd.Root().Writer)
	if auditPath != "" {
		var err error
		factory, err = auditlog.NewFileFactory(auditPath)
		if err != nil {
			return err
		}
	}

	c, err := fakecluster.New(
		fakecluster.WithAdmin(config.VConfig.GetString(config.ClusterAdminUser), config.VConfig.GetString(config.ClusterAdminPassword)),
		fakecluster.WithAudit(factory),
		fakecluster.WithAuditDelay(cmd.Duration("audit-delay")),
	)
	if err != nil {
		return err
	}
	c.Start(port)

	// Wait for interrupt signal to gracefully shutdown the server
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	<-ctx.Done()
	logger.Info(agent, "shutdown", "Shutting down server...")

	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Stop(shutdown); err != nil {
		return err
	}

	logger.Info(agent, "shutdown", "Server exited gracefully.")
	return nil
}
