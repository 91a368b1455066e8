package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Runtime setting keys, shared by flags and COUNCIL_* environment variables.
const (
	KeyConfigDir  = "config-dir"
	KeyStateFile  = "state-file"
	KeyOutputDir  = "output-dir"
	KeyLogDir     = "log-dir"
	KeyTimeout    = "timeout"
	KeyLogLevel   = "log-level"
	KeyLogFile    = "log-file"
	KeyNoProgress = "no-progress"
)

// EnvPrefix prefixes environment overrides, e.g. COUNCIL_STATE_FILE.
const EnvPrefix = "COUNCIL"

// Settings are the runtime settings of one council process.
type Settings struct {
	ConfigDir  string
	StateFile  string
	OutputDir  string
	LogDir     string
	Timeout    time.Duration
	LogLevel   string
	LogFile    string
	NoProgress bool
}

// NewViper returns a viper instance with the setting defaults and environment binding.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyConfigDir, DefaultDir)
	v.SetDefault(KeyStateFile, "session_state.json")
	v.SetDefault(KeyOutputDir, "output")
	v.SetDefault(KeyLogDir, "logs")
	v.SetDefault(KeyTimeout, time.Duration(0))
	v.SetDefault(KeyLogLevel, "")
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyNoProgress, false)
	return v
}

// SettingsFrom reads the settings out of v.
func SettingsFrom(v *viper.Viper) Settings {
	return Settings{
		ConfigDir:  v.GetString(KeyConfigDir),
		StateFile:  v.GetString(KeyStateFile),
		OutputDir:  v.GetString(KeyOutputDir),
		LogDir:     v.GetString(KeyLogDir),
		Timeout:    v.GetDuration(KeyTimeout),
		LogLevel:   v.GetString(KeyLogLevel),
		LogFile:    v.GetString(KeyLogFile),
		NoProgress: v.GetBool(KeyNoProgress),
	}
}
