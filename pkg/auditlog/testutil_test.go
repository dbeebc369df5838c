//
//  Copyright © Manetu Inc. All rights reserved.
//

package auditlog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	grantedAdmin     = "[t] [transport] [access_granted]\torigin_type=[rest], origin_address=[127.0.0.1], principal=[test_admin], action=[indices:data/read/sql], request=[SqlRequest]"
	grantedAdminTest = "[t] [transport] [access_granted]\torigin_type=[rest], origin_address=[127.0.0.1], principal=[test_admin], action=[indices:data/read/sql], indices=[test,.security], request=[SqlRequest]"
	deniedNoAccess   = "[t] [transport] [access_denied]\torigin_type=[rest], origin_address=[127.0.0.1], principal=[no_access], run_by_principal=[test_admin], action=[indices:data/read/sql], request=[SqlRequest]"
	runAsNoise       = "[t] [transport] [run_as_granted]\torigin_type=[rest], origin_address=[127.0.0.1], principal=[test_admin], run_as_principal=[no_access], action=[indices:data/read/sql], request=[SqlRequest]"
	otherActionNoise = "[t] [transport] [access_granted]\torigin_type=[rest], origin_address=[127.0.0.1], principal=[test_admin], action=[cluster:monitor/main], request=[MainRequest]"
)

func tempLog(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "cluster_access.log")
}

func appendLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	for _, line := range lines {
		_, err := f.WriteString(line + "\n")
		require.NoError(t, err)
	}
}
