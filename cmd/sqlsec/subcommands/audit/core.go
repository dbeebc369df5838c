//
//  Copyright © Manetu Inc. All rights reserved.
//

package audit

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/manetu/sqlsecurity/internal/logging"
	"github.com/manetu/sqlsecurity/pkg/auditlog"
	"github.com/manetu/sqlsecurity/pkg/common"
	"github.com/manetu/sqlsecurity/pkg/config"
	"github.com/manetu/sqlsecurity/pkg/scenario"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
)

var logger = logging.GetLogger("audit")

const agent string = "audit"

func open(path string, stdin io.Reader) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(stdin), nil
	}
	f, err := os.Open(path) // #nosec G304 -- CLI tool intentionally reads user-provided paths
	if err != nil {
		return nil, errors.Wrap(err, "failed to open audit log")
	}
	return f, nil
}

// ExecuteParse decodes an audit log and prints every event as JSON.  With
// --monitored only access decisions on the SQL actions are printed, with the
// configured administrator's hidden indices removed, as assertions see them.
func ExecuteParse(_ context.Context, cmd *cli.Command) error {
	if err := config.Load(); err != nil {
		return err
	}

	in, err := open(cmd.String("input"), cmd.Root().Reader)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	monitored := cmd.Bool("monitored")
	normalizer := scenario.NormalizerFromConfig()
	decoder := auditlog.NewDecoder()
	out := cmd.Root().Writer

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	count := 0
	for n := 1; scanner.Scan(); n++ {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		e, err := decoder.Decode(line)
		if err != nil {
			return errors.Wrapf(err, "line %d", n)
		}
		if monitored {
			if !normalizer.Relevant(e) {
				continue
			}
			e = normalizer.Normalize(e)
		}
		common.PrettyPrint(out, e)
		count++
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "failed to read audit log")
	}

	logger.Debugf(agent, "parse", "decoded %d events", count)
	return nil
}

// ExecuteTail follows an audit log and prints each event as it is appended,
// until interrupted.
func ExecuteTail(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("input")

	var offset int64
	if !cmd.Bool("from-start") {
		var err error
		offset, err = auditlog.Offset(path)
		if err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	out := cmd.Root().Writer
	follower := auditlog.NewFollower(path, offset)
	logger.Infof(agent, "tail", "following %s from offset %d", path, offset)
	return follower.Run(ctx, func(e auditlog.Event) error {
		_, err := fmt.Fprintln(out, e)
		return err
	})
}
