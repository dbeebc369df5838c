//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package config provides configuration management for the harness using
// [Viper] for flexible configuration sources.
//
// Configuration can be provided via:
//   - YAML configuration files
//   - Environment variables with the SQLSEC_ prefix
//   - Programmatic defaults
//
// # Configuration File
//
// By default, the harness looks for sqlsec-config.yaml in the current
// directory.  Override the location using environment variables:
//
//	SQLSEC_CONFIG_PATH=/etc/sqlsec
//	SQLSEC_CONFIG_FILENAME=ci-config
//
// Example configuration file:
//
//	log:
//	  level: ".:info;auditlog:debug"
//	cluster:
//	  url: http://localhost:9200
//	  admin:
//	    user: test_admin
//	    password: x-pack-test-password
//	audit:
//	  logfile: /var/log/es/cluster_access.log
//	  timeout: 10s
//	  hiddenindices: [".security", ".security-6", ".security-v6"]
//
// # Environment Variables
//
// All configuration keys can be set via environment variables with the
// SQLSEC_ prefix.  Dots in key names become underscores:
//
//	SQLSEC_AUDIT_LOGFILE=/tmp/audit.log
//	SQLSEC_CLUSTER_URL=http://es:9200
//
// [Viper]: https://github.com/spf13/viper
package config

import (
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/manetu/sqlsecurity/internal/logging"
	"github.com/spf13/viper"
)

// Environment variable and default path constants for configuration loading.
const (
	// EnvVarPrefix is the prefix for all harness environment variables.
	EnvVarPrefix string = "SQLSEC"

	// ConfigPathEnv names the directory containing the configuration file.
	ConfigPathEnv string = "SQLSEC_CONFIG_PATH"

	// ConfigFileNameEnv names the configuration file (without extension).
	ConfigFileNameEnv string = "SQLSEC_CONFIG_FILENAME"

	// ConfigDefaultPath is the default directory to search for config files.
	ConfigDefaultPath string = "."

	// ConfigDefaultFilename is the default configuration file name (without extension).
	ConfigDefaultFilename string = "sqlsec-config"
)

// Configuration key constants for use with [VConfig].
const (
	logLevel string = "log.level"

	// ClusterURL is the base URL of the cluster under test.
	ClusterURL string = "cluster.url"

	// ClusterAdminUser is the administrative user every request authenticates
	// as.  Restricted users are reached through run-as.
	ClusterAdminUser string = "cluster.admin.user"

	// ClusterAdminPassword is the administrative user's password.
	ClusterAdminPassword string = "cluster.admin.password"

	// ClusterUserPassword is the password given to every provisioned user.
	ClusterUserPassword string = "cluster.user.password"

	// ClusterTimeout bounds every REST call.
	ClusterTimeout string = "cluster.timeout"

	// AuditLogFile is the absolute path of the security audit log written by
	// the cluster.  Required by the scenario runner.
	AuditLogFile string = "audit.logfile"

	// AuditTimeout bounds the polling performed by an audit assertion.
	AuditTimeout string = "audit.timeout"

	// AuditHiddenIndices lists internal indices the administrator may touch
	// incidentally and that the SQL surface never exposes.  They are removed
	// from the administrator's audit events before matching.
	AuditHiddenIndices string = "audit.hiddenindices"

	// AuditAdminPrincipal is the principal whose events get hidden indices removed.
	AuditAdminPrincipal string = "audit.adminprincipal"

	// FakePort is the port used by the in-process fake cluster.
	FakePort string = "fake.port"

	// FakeAuditFile is where the fake cluster appends its audit log.
	FakeAuditFile string = "fake.auditfile"
)

var (
	once     sync.Once
	loadOnce sync.Once
	loadErr  error

	// VConfig is the global Viper configuration instance for the harness.
	//
	// VConfig is initialized automatically when [Load] or [Init] is called.
	VConfig *viper.Viper
	logger  = logging.GetLogger("config")
)

// Init initializes the configuration system without loading config files.
// This function is safe to call multiple times; subsequent calls are no-ops.
func Init() {
	once.Do(func() {
		doInitialize()
	})
}

func getConfigPath() string {
	configPath, ok := os.LookupEnv(ConfigPathEnv)
	if ok {
		return configPath
	}

	return ConfigDefaultPath
}

func getConfigFileName() string {
	configName, ok := os.LookupEnv(ConfigFileNameEnv)
	if ok {
		return configName
	}

	return ConfigDefaultFilename
}

func doInitialize() {
	VConfig = viper.New()

	// default is './sqlsec-config.yaml' but can be overridden with $(SQLSEC_CONFIG_PATH)/$(SQLSEC_CONFIG_FILENAME).yaml
	VConfig.AddConfigPath(getConfigPath())
	VConfig.SetConfigName(getConfigFileName())
	VConfig.SetConfigType("yaml")

	// keys such as 'audit.logfile' become 'SQLSEC_AUDIT_LOGFILE'
	VConfig.SetEnvPrefix(EnvVarPrefix)
	VConfig.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	VConfig.AutomaticEnv()

	VConfig.SetDefault(logLevel, ".:info")
	VConfig.SetDefault(ClusterURL, "http://localhost:9200")
	VConfig.SetDefault(ClusterAdminUser, "test_admin")
	VConfig.SetDefault(ClusterAdminPassword, "x-pack-test-password")
	VConfig.SetDefault(ClusterUserPassword, "testpass")
	VConfig.SetDefault(ClusterTimeout, 30*time.Second)
	VConfig.SetDefault(AuditTimeout, 10*time.Second)
	VConfig.SetDefault(AuditHiddenIndices, []string{".security", ".security-6", ".security-v6"})
	VConfig.SetDefault(AuditAdminPrincipal, "test_admin")
	VConfig.SetDefault(FakePort, 9200)
}

// Load initializes configuration and loads settings from files and
// environment.  A missing configuration file is not an error.  Subsequent
// calls after the first are no-ops returning the first result.
func Load() error {
	loadOnce.Do(func() {
		Init()

		// Early log level update from environment variable allows us to debug the config loading.
		if early := os.Getenv("SQLSEC_LOG_LEVEL"); early != "" {
			if err := logging.UpdateLogLevels(early); err != nil {
				loadErr = err
				return
			}
		}

		logger.SysDebugf("Loading configuration from %s/%s.yaml", getConfigPath(), getConfigFileName())
		if err := VConfig.ReadInConfig(); err != nil {
			var configNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &configNotFound) {
				logger.SysWarnf("error reading config; using defaults: %+v", err)
			}
			logger.SysDebugf("No config file found at %s/%s.yaml", getConfigPath(), getConfigFileName())
		}

		loglevel := VConfig.GetString(logLevel)
		if err := logging.UpdateLogLevels(loglevel); err != nil {
			logger.SysErrorf("Failed updating log level %s: %+v", loglevel, err)
			loadErr = err
			return
		}

		if logger.IsDebugEnabled() {
			VConfig.DebugTo(logger.Out())
		}
	})

	return loadErr
}

// ResetConfig clears all configuration and reinitializes with defaults.
//
// WARNING: This function is intended for testing only.
func ResetConfig() {
	VConfig = nil
	once = sync.Once{}
	loadOnce = sync.Once{}
	loadErr = nil
	Init()
	_ = Load()
}
