package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides (WEBPSHRINK_TARGET_KB, ...).
const EnvPrefix = "WEBPSHRINK"

// Load builds a Config from, in increasing precedence: [DefaultConfig], the
// config file named by --config (or WEBPSHRINK_CONFIG), WEBPSHRINK_*
// environment variables, and flags explicitly set on fs. args become Roots.
// The result is not validated; call [Config.Validate] next.
func Load(fs *pflag.FlagSet, args []string) (Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(Key(f.Name), f); err != nil && bindErr == nil {
			bindErr = fmt.Errorf("bind flag --%s: %w", f.Name, err)
		}
	})
	if bindErr != nil {
		return Config{}, bindErr
	}

	if path := v.GetString(Key(FlagConfig)); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg, err := fromViper(v)
	if err != nil {
		return Config{}, err
	}
	cfg.Roots = append(cfg.Roots, args...)
	return cfg, nil
}

// setDefaults seeds viper with every key so that config files and env vars
// are picked up even for flags that were never registered.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault(Key(FlagNumbered), d.Numbered)
	v.SetDefault(Key(FlagOut), d.OutputDir)
	v.SetDefault(Key(FlagExt), d.Exts)
	v.SetDefault(Key(FlagRecursive), d.Recursive)
	v.SetDefault(Key(FlagTargetKB), d.TargetKB)
	v.SetDefault(Key(FlagMaxDimension), d.MaxDimension)
	v.SetDefault(Key(FlagStartQuality), d.StartQuality)
	v.SetDefault(Key(FlagQualityStep), d.QualityStep)
	v.SetDefault(Key(FlagQualityFloor), d.QualityFloor)
	v.SetDefault(Key(FlagDryRun), d.DryRun)
	v.SetDefault(Key(FlagForce), !d.SkipExisting)
	v.SetDefault(Key(FlagAtomic), d.Atomic)
	v.SetDefault(Key(FlagFailFast), d.FailFast)
	v.SetDefault(Key(FlagWorkers), d.Workers)
	v.SetDefault(Key(FlagVerbose), d.Verbose)
	v.SetDefault(Key(FlagColor), string(d.ColorMode))
	v.SetDefault(Key(FlagNoColor), false)
	v.SetDefault(Key(FlagLog), d.LogFile)
	v.SetDefault(Key(FlagReport), d.ReportFile)
	v.SetDefault(Key(FlagConfig), d.ConfigFile)
	v.SetDefault("roots", []string{})
}

// fromViper reads every key back into a Config. Negated flags are applied
// here: --force clears SkipExisting, --no-color wins over --color.
func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Roots:        v.GetStringSlice("roots"),
		Numbered:     v.GetString(Key(FlagNumbered)),
		OutputDir:    v.GetString(Key(FlagOut)),
		Exts:         splitList(v.GetStringSlice(Key(FlagExt))),
		Recursive:    v.GetBool(Key(FlagRecursive)),
		TargetKB:     v.GetInt(Key(FlagTargetKB)),
		MaxDimension: v.GetInt(Key(FlagMaxDimension)),
		StartQuality: v.GetInt(Key(FlagStartQuality)),
		QualityStep:  v.GetInt(Key(FlagQualityStep)),
		QualityFloor: v.GetInt(Key(FlagQualityFloor)),
		DryRun:       v.GetBool(Key(FlagDryRun)),
		SkipExisting: !v.GetBool(Key(FlagForce)),
		Atomic:       v.GetBool(Key(FlagAtomic)),
		FailFast:     v.GetBool(Key(FlagFailFast)),
		Workers:      v.GetInt(Key(FlagWorkers)),
		Verbose:      v.GetBool(Key(FlagVerbose)),
		ColorMode:    ColorMode(strings.ToLower(v.GetString(Key(FlagColor)))),
		LogFile:      v.GetString(Key(FlagLog)),
		ReportFile:   v.GetString(Key(FlagReport)),
		ConfigFile:   v.GetString(Key(FlagConfig)),
	}
	if v.GetBool(Key(FlagNoColor)) {
		cfg.ColorMode = ColorNever
	}
	if cfg.ColorMode == "" {
		return Config{}, errors.New("color mode must not be empty")
	}
	return cfg, nil
}

// splitList flattens comma-separated entries so "webp,png" from an env var
// behaves like two --ext flags.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
