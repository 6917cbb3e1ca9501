// Package config loads server settings from a TOML file, CHATPANEL_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/chatpanel/server/message"
)

const (
	configName = "chatpanel"
	configType = "toml"
	envPrefix  = "CHATPANEL"
)

const (
	KeyPort             = "port"
	KeyAuthToken        = "auth_token"
	KeyDevMode          = "dev_mode"
	KeyLogLevel         = "log_level"
	KeyAssistantBaseURL = "assistant.base_url"
	KeyAssistantPath    = "assistant.path"
	KeyAssistantToken   = "assistant.token"
	KeyAssistantTimeout = "assistant.timeout"
	KeyAssistantMock    = "assistant.mock"
	KeyWorkspaceFile    = "workspace.file"
	KeyIdentityStrategy = "identity.strategy"
)

var ErrMissingAuthToken = errors.New("auth_token is required")

type Config struct {
	Port      int
	AuthToken string
	DevMode   bool
	LogLevel  string
	Assistant AssistantConfig
	// WorkspaceFile is a TOML file describing the selected workspace. Empty
	// means no workspace is selected.
	WorkspaceFile string
	Identity      message.Strategy
}

type AssistantConfig struct {
	BaseURL string
	Path    string
	Token   string
	Timeout time.Duration
	// Mock answers locally instead of calling BaseURL.
	Mock bool
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyPort, 8080)
	v.SetDefault(KeyDevMode, false)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyAssistantPath, "/api/chat")
	v.SetDefault(KeyAssistantTimeout, 60*time.Second)
	v.SetDefault(KeyAssistantMock, false)
	v.SetDefault(KeyIdentityStrategy, string(message.StrategyUUID))
}

// Load reads configuration into v. When configFile is empty, chatpanel.toml
// is searched in the working directory and $HOME/.config/chatpanel, and a
// missing file is not an error.
func Load(v *viper.Viper, configFile string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath(".")
		if homeDir, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".config", configName))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := Config{
		Port:      v.GetInt(KeyPort),
		AuthToken: v.GetString(KeyAuthToken),
		DevMode:   v.GetBool(KeyDevMode),
		LogLevel:  v.GetString(KeyLogLevel),
		Assistant: AssistantConfig{
			BaseURL: v.GetString(KeyAssistantBaseURL),
			Path:    v.GetString(KeyAssistantPath),
			Token:   v.GetString(KeyAssistantToken),
			Timeout: v.GetDuration(KeyAssistantTimeout),
			Mock:    v.GetBool(KeyAssistantMock),
		},
		WorkspaceFile: v.GetString(KeyWorkspaceFile),
		Identity:      message.Strategy(v.GetString(KeyIdentityStrategy)),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.AuthToken == "" {
		return ErrMissingAuthToken
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Assistant.Timeout < 0 {
		return fmt.Errorf("invalid assistant timeout %s", c.Assistant.Timeout)
	}
	if !c.Assistant.Mock && c.Assistant.BaseURL == "" {
		return errors.New("assistant.base_url is required unless assistant.mock is set")
	}
	switch c.Identity {
	case message.StrategyUUID, message.StrategyFallback:
	default:
		return fmt.Errorf("unknown identity strategy %q", c.Identity)
	}
	return nil
}
