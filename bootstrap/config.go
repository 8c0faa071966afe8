package bootstrap

import (
	"fmt"
	"os"
	"strings"

	"cyberres/config"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLogger initializes the zap logger with colored console output on stderr.
// Stdout is left to command output.
func InitLogger(level string) (*zap.Logger, *zap.SugaredLogger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder // Colored levels
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder        // Readable timestamps
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder      // Short file paths

	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)

	core := zapcore.NewCore(
		consoleEncoder,
		zapcore.Lock(zapcore.AddSync(os.Stderr)),
		lvl,
	)

	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return logger, logger.Sugar(), nil
}

// InitConfig loads the configuration, from path when given, otherwise from the
// default search locations
func InitConfig(path string, sugar *zap.SugaredLogger) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadConfigFile(path)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if sugar != nil {
		if viper.ConfigFileUsed() == "" {
			sugar.Debug("No config file found, using defaults and env vars")
		}
		sugar.Debugw("Config loaded",
			"config_file", viper.ConfigFileUsed(),
			"input", cfg.Input.Path,
			"rules", cfg.RulesPath(),
			"policies", cfg.PoliciesPath(),
			"out_dir", cfg.Output.Dir)
	}
	return cfg, nil
}
