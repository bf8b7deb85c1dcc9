package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment key: db.dsn -> PASSBY_DB_DSN.
const EnvPrefix = "PASSBY"

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"http-addr":    "http-addr",
	"grpc-addr":    "grpc-addr",
	"dev":          "dev",
	"jwt-key":      "jwt-key",
	"dsn":          "db.dsn",
	"redis-addr":   "redis.addr",
	"nats-servers": "nats.servers",
}

// RegisterFlags adds the config flags to fs with defaults taken from def.
func RegisterFlags(fs *pflag.FlagSet, def Config) {
	fs.String("http-addr", def.HTTPAddr, "HTTP API listen address")
	fs.String("grpc-addr", def.GRPCAddr, "membership gRPC listen address")
	fs.Bool("dev", def.Dev, "development logging and gRPC reflection")
	fs.String("jwt-key", def.JWTKey, "HS256 access token key")
	fs.String("dsn", def.DB.DSN, "PostgreSQL DSN")
	fs.String("redis-addr", def.Redis.Addr, "Redis address of the token cache (empty disables it)")
	fs.StringSlice("nats-servers", def.NATS.Servers, "NATS servers for events (empty disables them)")
}

// Load builds the config from defaults, an optional file, PASSBY_*
// environment variables and flags, in increasing precedence.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	if err := bindEnv(v, reflect.TypeOf(Config{}), ""); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if fs != nil {
		for name, key := range flagKeys {
			f := fs.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	cfg := Default()
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook), withErrorUnused()); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func withErrorUnused() viper.DecoderConfigOption {
	return func(c *mapstructure.DecoderConfig) {
		c.ErrorUnused = true
	}
}

// bindEnv registers an environment binding for every leaf key of t so
// that Unmarshal sees variables for keys absent from the file.
func bindEnv(v *viper.Viper, t reflect.Type, prefix string) error {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		if f.Type.Kind() == reflect.Struct {
			if err := bindEnv(v, f.Type, key); err != nil {
				return err
			}
			continue
		}
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}
