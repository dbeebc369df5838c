//
//  Copyright © Manetu Inc. All rights reserved.
//

package fake

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/manetu/sqlsecurity/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

// buildFakeTestCommand creates a CLI command structure for testing the fake serve command
func buildFakeTestCommand(out *bytes.Buffer) *cli.Command {
	return &cli.Command{
		Name:   "sqlsec",
		Writer: out,
		Commands: []*cli.Command{
			{
				Name: "fake",
				Commands: []*cli.Command{
					{
						Name: "serve",
						Flags: []cli.Flag{
							&cli.IntFlag{Name: "port", Value: 9200},
							&cli.StringFlag{Name: "audit-file", Aliases: []string{"a"}},
							&cli.DurationFlag{Name: "audit-delay"},
						},
						Action: Execute,
					},
				},
			},
		},
	}
}

func TestExecuteStopsWithContext(t *testing.T) {
	t.Setenv(config.ConfigPathEnv, t.TempDir())
	config.ResetConfig()
	t.Cleanup(config.ResetConfig)

	auditFile := filepath.Join(t.TempDir(), "fake_access.log")
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := buildFakeTestCommand(&bytes.Buffer{}).Run(ctx,
		[]string{"sqlsec", "fake", "serve", "--port", "0", "-a", auditFile, "--audit-delay", "1ms"})
	require.NoError(t, err)
	assert.FileExists(t, auditFile)
}
