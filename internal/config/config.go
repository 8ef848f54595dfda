package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath     = "config.toml"
	DefaultHTTPAddr       = ":8080"
	DefaultBotDisplayName = "Coach MESH"
	DefaultBotPrefix      = "[Bot]"
	DefaultTopic          = "MVP"
	DefaultStreamURL      = "http://127.0.0.1:8081/chat/stream"
	DefaultStreamTimeout  = 120
)

type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Transport TransportConfig `toml:"transport"`
	Stream    StreamConfig    `toml:"stream"`
	Events    EventsConfig    `toml:"events"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

// TransportConfig wires the external chat-thread service.
type TransportConfig struct {
	ConnectionString string `toml:"connection_string"`
	BotDisplayName   string `toml:"bot_display_name"`
	BotPrefix        string `toml:"bot_prefix"`
	Topic            string `toml:"topic"`
}

// StreamConfig points at the generation backend's streaming endpoint.
type StreamConfig struct {
	URL            string `toml:"url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// EventsConfig wires the outbound event topic used to publish AI user
// message events.
type EventsConfig struct {
	TopicEndpoint string `toml:"topic_endpoint"`
	TopicKey      string `toml:"topic_key"`
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Transport: TransportConfig{
			BotDisplayName: DefaultBotDisplayName,
			BotPrefix:      DefaultBotPrefix,
			Topic:          DefaultTopic,
		},
		Stream: StreamConfig{
			URL:            DefaultStreamURL,
			TimeoutSeconds: DefaultStreamTimeout,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
