package config

import (
	"github.com/ilyakaznacheev/cleanenv"

	"github.com/myapphub/apphub/internal/storage"
	"github.com/myapphub/apphub/pkg/database/postgres"
	"github.com/myapphub/apphub/pkg/database/redis"
)

// Config is the process-wide configuration. It is built once at startup
// and never mutated afterwards.
type Config struct {
	ExternalURL       string `env:"EXTERNAL_URL" env-default:"http://localhost:8000"`
	InstallSignSecret string `env:"INSTALL_SIGN_SECRET" env-default:""`
	NotifyChannel     string `env:"NOTIFY_CHANNEL" env-default:"apphub:new_package"`
	Postgres          postgres.Config
	Redis             redis.RedisConfig
	Storage           storage.Config
}

func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadConfig(".env", &cfg); err != nil {
		// No .env file; plain environment variables still apply.
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}
