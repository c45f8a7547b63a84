package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// envOverrides lists the environment variables ApplyEnv understands.
// Unset variables stay nil and leave the file value alone.
type envOverrides struct {
	PlannerProvider *string        `mapstructure:"TALLY_PLANNER_PROVIDER"`
	PlannerURL      *string        `mapstructure:"TALLY_PLANNER_URL"`
	PlannerModel    *string        `mapstructure:"TALLY_PLANNER_MODEL"`
	PlannerAPIKey   *string        `mapstructure:"TALLY_PLANNER_API_KEY"`
	PlannerScript   *string        `mapstructure:"TALLY_PLANNER_SCRIPT"`
	StepBudget      *int           `mapstructure:"TALLY_STEP_BUDGET"`
	PlannerTimeout  *time.Duration `mapstructure:"TALLY_PLANNER_TIMEOUT"`
	RedisAddr       *string        `mapstructure:"TALLY_REDIS_ADDR"`
	RedisPassword   *string        `mapstructure:"TALLY_REDIS_PASSWORD"`
	HTTPAddr        *string        `mapstructure:"TALLY_HTTP_ADDR"`
	EncryptionKey   *string        `mapstructure:"TALLY_ENCRYPTION_KEY"`
	LogLevel        *string        `mapstructure:"TALLY_LOG_LEVEL"`
	LogFormat       *string        `mapstructure:"TALLY_LOG_FORMAT"`
	UserID          *string        `mapstructure:"TALLY_USER_ID"`
}

// ApplyEnv overrides c with TALLY_* entries from environ (KEY=VALUE form).
// Setting TALLY_REDIS_ADDR also switches the store driver to redis.
func (c *Config) ApplyEnv(environ []string) error {
	vars := make(map[string]any)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		vars[key] = value
	}
	if len(vars) == 0 {
		return nil
	}

	var ov envOverrides
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		Result:           &ov,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(vars); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}

	setString(&c.Planner.Provider, ov.PlannerProvider)
	setString(&c.Planner.URL, ov.PlannerURL)
	setString(&c.Planner.Model, ov.PlannerModel)
	setString(&c.Planner.APIKey, ov.PlannerAPIKey)
	setString(&c.Planner.Script, ov.PlannerScript)
	if ov.StepBudget != nil {
		c.Engine.StepBudget = *ov.StepBudget
	}
	if ov.PlannerTimeout != nil {
		c.Engine.PlannerTimeout = Duration(*ov.PlannerTimeout)
	}
	if ov.RedisAddr != nil && *ov.RedisAddr != "" {
		c.Store.Driver = DriverRedis
		c.Store.Addr = *ov.RedisAddr
	}
	setString(&c.Store.Password, ov.RedisPassword)
	setString(&c.HTTP.Addr, ov.HTTPAddr)
	setString(&c.Transcripts.EncryptionKey, ov.EncryptionKey)
	setString(&c.Log.Level, ov.LogLevel)
	setString(&c.Log.Format, ov.LogFormat)
	setString(&c.User.UserID, ov.UserID)
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
