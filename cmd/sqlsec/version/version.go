//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package version reports the sqlsec build.
package version

// Set at build time, e.g.
//
//	go build -ldflags "-X github.com/manetu/sqlsecurity/cmd/sqlsec/version.Version=v0.3.0 -X github.com/manetu/sqlsecurity/cmd/sqlsec/version.Commit=$(git rev-parse --short HEAD)"
var (
	Version = "dev"
	Commit  = ""
)

// GetVersion returns the release and, when known, the commit it was built
// from.
func GetVersion() string {
	if Commit == "" {
		return Version
	}
	return Version + " (" + Commit + ")"
}
