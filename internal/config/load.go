package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/isometry/ldap-gate/internal/ldap"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "LDAP_GATE"

// legacyEnv maps configuration keys to the unprefixed variable names of
// earlier deployments. Prefixed names take precedence.
var legacyEnv = map[string]string{
	"jwt.secret":          "JWT_SECRET",
	"jwt.max_age":         "JWT_MAXAGE",
	"ldap.bind_dn":        "BIND_USER",
	"ldap.bind_password":  "BIND_PASSWORD",
	"ldap.host":           "LDAP_SERVER",
	"ldap.port":           "LDAP_PORT",
	"ldap.base_dn":        "LDAP_BASE",
	"ldap.users_base_dn":  "LDAP_USERS_BASE",
	"ldap.groups_base_dn": "LDAP_GROUPS_BASE",
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"log-level": "logging.level",
	"listen":    "server.listen",
}

// Load builds the configuration from struct defaults, an optional file,
// environment variables and changed flags, in increasing precedence.
// A missing file is not an error. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}

	v := viper.New()
	if err := readConfigFile(v, path); err != nil {
		return nil, err
	}

	for _, key := range configKeys(reflect.TypeOf(*cfg), "") {
		names := []string{key, envName(key)}
		if legacy, ok := legacyEnv[key]; ok {
			names = append(names, legacy)
		}
		if err := v.BindEnv(names...); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil && f.Changed {
				v.Set(key, f.Value.String())
			}
		}
	}

	if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// readConfigFile loads path into v. An empty path or a path that does not
// exist leaves v empty.
func readConfigFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	return validate.Struct(cfg)
}

// envName returns the prefixed variable for key: ldap.base_dn -> LDAP_GATE_LDAP_BASE_DN.
func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// configKeys lists the dotted mapstructure keys of every leaf field of t.
func configKeys(t reflect.Type, prefix string) []string {
	var keys []string
	for i := range t.NumField() {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		if field.Type.Kind() == reflect.Struct && field.Type.PkgPath() == t.PkgPath() {
			keys = append(keys, configKeys(field.Type, key)...)
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		tlsModeDecodeHook(),
	)
}

// tlsModeDecodeHook accepts TLS modes in any case.
func tlsModeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(ldap.TLSMode("")) {
			return data, nil
		}
		s, ok := data.(string)
		if !ok {
			return data, nil
		}
		return ldap.TLSMode(strings.ToLower(strings.TrimSpace(s))), nil
	}
}
