package config

import (
	"errors"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Server       ServerConfig
	Conversation ConversationConfig
	History      HistoryConfig
	LogLevel     string `mapstructure:"log_level"`
}

// ServerConfig holds the location of the conversation API
type ServerConfig struct {
	Host    string        `mapstructure:"host"`
	Port    string        `mapstructure:"port"`
	Path    string        `mapstructure:"path"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ConversationConfig holds the inputs of the request sent to the conversation API
type ConversationConfig struct {
	Message         string `mapstructure:"message"`
	ConversationID  string `mapstructure:"conversation_id"`
	ParentMessageID string `mapstructure:"parent_message_id"`
}

// HistoryConfig holds the local transcript configuration
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Endpoint returns the URL the conversation request is posted to.
func (s ServerConfig) Endpoint() string {
	path := s.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(s.Host, s.Port),
		Path:   path,
	}
	return u.String()
}

// Defaults applied before any file, env or flag source.
const (
	DefaultHost            = "localhost"
	DefaultPort            = "46230"
	DefaultPath            = "/conversation"
	DefaultMessage         = "我第一句话说的什么"
	DefaultConversationID  = "07710821-ad06-408c-ba60-1a69bf3ca92a"
	DefaultParentMessageID = "73b144d2-a41f-4aeb-b3bb-8624f0e54ba6"
	DefaultHistoryPath     = "convo_history.db"
)

// flagKeys maps CLI flag names onto config keys.
var flagKeys = map[string]string{
	"host":              "server.host",
	"port":              "server.port",
	"path":              "server.path",
	"timeout":           "server.timeout",
	"conversation-id":   "conversation.conversation_id",
	"parent-message-id": "conversation.parent_message_id",
	"history":           "history.enabled",
	"history-path":      "history.path",
	"log-level":         "log_level",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", DefaultHost)
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.path", DefaultPath)
	v.SetDefault("server.timeout", time.Duration(0))
	v.SetDefault("conversation.message", DefaultMessage)
	v.SetDefault("conversation.conversation_id", DefaultConversationID)
	v.SetDefault("conversation.parent_message_id", DefaultParentMessageID)
	v.SetDefault("history.enabled", false)
	v.SetDefault("history.path", DefaultHistoryPath)
	v.SetDefault("log_level", "info")
}

// Load loads the configuration from defaults, the optional config.yaml file
// (or CONFIG_PATH), .env and CONVO_* environment variables.
func Load() (*Config, error) {
	return LoadWithFlags(nil)
}

// LoadWithFlags is Load with changed CLI flags taking precedence over every
// other source. A nil flag set is allowed.
func LoadWithFlags(flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	v.SetEnvPrefix("CONVO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
