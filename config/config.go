package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "FLEXCHAT"

const (
	KeyDatabaseDir = "database-dir"
	KeyAddress     = "address"
	KeyLogLevel    = "log-level"
	KeyAutoMigrate = "auto-migrate"
	KeyConfig      = "config"
)

type Config struct {
	DatabaseDir string
	Address     string
	LogLevel    string
	AutoMigrate bool
}

// New returns a viper instance reading FLEXCHAT_* variables, with defaults
// for every key. A missing .env file is not an error.
func New() *viper.Viper {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyDatabaseDir, "")
	v.SetDefault(KeyAddress, ":8080")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyAutoMigrate, false)
	return v
}

// BindFlags lets command line flags override env and file values.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for _, key := range []string{KeyDatabaseDir, KeyAddress, KeyLogLevel, KeyAutoMigrate, KeyConfig} {
		if f := flags.Lookup(key); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	return nil
}

// Load reads the optional config file named by the config key and returns
// the resolved settings.
func Load(v *viper.Viper) (Config, error) {
	if file := strings.TrimSpace(v.GetString(KeyConfig)); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}
	return Config{
		DatabaseDir: v.GetString(KeyDatabaseDir),
		Address:     v.GetString(KeyAddress),
		LogLevel:    v.GetString(KeyLogLevel),
		AutoMigrate: v.GetBool(KeyAutoMigrate),
	}, nil
}
