package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode        string        `mapstructure:"mode"`
	Port        int           `mapstructure:"port"`
	TokendPort  int           `mapstructure:"tokend_port"`
	StaticPath  string        `mapstructure:"static_path"`
	BackendURL  string        `mapstructure:"backend_url"`
	IssuerURL   string        `mapstructure:"issuer_url"`
	Slots       int           `mapstructure:"slots"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
	ICEServers  []string      `mapstructure:"ice_servers"`
	Secret      string        `mapstructure:"secret"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"`
	TURNSecret  string        `mapstructure:"turn_secret"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("tokend_port", 4000)
	v.SetDefault("static_path", "./web")
	v.SetDefault("backend_url", "ws://localhost:7880")
	v.SetDefault("issuer_url", "http://localhost:4000")
	v.SetDefault("slots", 6)
	v.SetDefault("settle_delay", "500ms")
	v.SetDefault("ice_servers", []string{
		"stun:stun.l.google.com:19302",
		"stun:stun1.l.google.com:19302",
	})
	v.SetDefault("token_ttl", "6h")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Backend: %s | Slots: %d\n", cfg.Mode, cfg.Port, cfg.BackendURL, cfg.Slots)
	return &cfg, nil
}
