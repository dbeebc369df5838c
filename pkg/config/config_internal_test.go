//
//  Copyright © Manetu Inc. All rights reserved.
//

package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetConfigPath_WithEnvVar(t *testing.T) {
	t.Setenv(ConfigPathEnv, "/custom/config/path")
	assert.Equal(t, "/custom/config/path", getConfigPath())
}

func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv(ConfigPathEnv, "")
	_ = os.Unsetenv(ConfigPathEnv)
	assert.Equal(t, ConfigDefaultPath, getConfigPath())
}

func TestGetConfigFileName_WithEnvVar(t *testing.T) {
	t.Setenv(ConfigFileNameEnv, "custom-config-name")
	assert.Equal(t, "custom-config-name", getConfigFileName())
}

func TestGetConfigFileName_Default(t *testing.T) {
	t.Setenv(ConfigFileNameEnv, "")
	_ = os.Unsetenv(ConfigFileNameEnv)
	assert.Equal(t, ConfigDefaultFilename, getConfigFileName())
}
