package config

import (
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	App struct {
		Env string
	} `mapstructure:"app"`

	Telegram struct {
		Token           string
		AdminID         int64   `mapstructure:"admin_id"`
		SupportChatURL  string  `mapstructure:"support_chat_url"`
		PollTimeoutSec  int     `mapstructure:"poll_timeout_sec"`
		RateLimitPerSec float64 `mapstructure:"rate_limit_per_sec"`
	} `mapstructure:"telegram"`

	Payments struct {
		SBPPhone string `mapstructure:"sbp_phone"`
		Wallet   string `mapstructure:"wallet"`
	} `mapstructure:"payments"`

	TorrServer struct {
		Address        string
		UsersFile      string `mapstructure:"users_file"`
		RestartCommand string `mapstructure:"restart_command"`
	} `mapstructure:"torrserver"`

	HTTP struct {
		Addr string
	} `mapstructure:"http"`

	Postgres struct {
		DSN string
	} `mapstructure:"postgres"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`
}

func Load(path string) (Config, error) {
	// .env, если он есть, подхватываем до viper — переменные вида APP_*
	// перекрывают yaml.
	_ = gotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()

	var c Config
	if err := v.ReadInConfig(); err != nil {
		return c, err
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	if c.Telegram.PollTimeoutSec == 0 {
		c.Telegram.PollTimeoutSec = 30
	}
	if c.Telegram.RateLimitPerSec == 0 {
		c.Telegram.RateLimitPerSec = 1
	}
	return c, nil
}
