package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/enquirywitch/enquirywitch/internal/config"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

type envKey struct{}

// Env keeps what every command needs.
type Env struct {
	Cfg *config.Config
	Log *zap.Logger

	// configFile is empty when running on defaults.
	configFile    string
	debug         bool
	start         time.Time
	restoreStdLog func()
}

// EnvFromContext returns the environment stored by ContextWithEnv.
func EnvFromContext(ctx context.Context) *Env {
	if env, ok := ctx.Value(envKey{}).(*Env); ok {
		return env
	}
	panic("command environment not found in context")
}

// ContextWithEnv attaches a fresh environment to ctx.
func ContextWithEnv(ctx context.Context) context.Context {
	return context.WithValue(ctx, envKey{}, &Env{start: time.Now(), Log: zap.NewNop()})
}

// Uptime reports how long the program has been running.
func (e *Env) Uptime() time.Duration {
	return time.Since(e.start)
}

func (e *Env) prepare(configFile string, debug bool) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("unable to prepare configuration: %w", err)
	}
	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			e.configFile = configFile
		}
	}
	e.debug = debug
	return e.use(cfg)
}

func (e *Env) use(cfg *config.Config) error {
	if e.debug {
		cfg.Server.Debug = true
		if cfg.Logging.ConsoleLogger.Level != "none" {
			cfg.Logging.ConsoleLogger.Level = "debug"
		}
	}
	log, err := cfg.Logging.Prepare()
	if err != nil {
		return fmt.Errorf("unable to prepare logs: %w", err)
	}
	e.RestoreStdLog()
	e.Cfg, e.Log = cfg, log
	e.restoreStdLog = zap.RedirectStdLog(log)
	return nil
}

// loadStoryConfig picks up enquirywitch.yaml next to the story when no
// configuration file was given on the command line.
func (e *Env) loadStoryConfig(storyPath string) error {
	if e.configFile != "" {
		return nil
	}
	dir := storyPath
	if info, err := os.Stat(storyPath); err == nil && !info.IsDir() {
		dir = filepath.Dir(storyPath)
	}
	file := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(file); err != nil {
		return nil
	}
	cfg, err := config.Load(file)
	if err != nil {
		return err
	}
	e.configFile = file
	if err := e.use(cfg); err != nil {
		return err
	}
	e.Log.Info("Using story configuration", zap.String("file", file))
	return nil
}

// RestoreStdLog syncs the logger and undoes the standard log redirect.
func (e *Env) RestoreStdLog() {
	if e.Log != nil {
		_ = e.Log.Sync()
	}
	if e.restoreStdLog != nil {
		e.restoreStdLog()
		e.restoreStdLog = nil
	}
}

// Before prepares configuration and logging once flags are parsed.
func Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	env := EnvFromContext(ctx)
	if err := env.prepare(cmd.String("config"), cmd.Bool("debug")); err != nil {
		return ctx, err
	}
	env.Log.Debug("Program started", zap.Strings("args", os.Args))
	if env.configFile == "" {
		env.Log.Debug("Using defaults (no configuration file)")
	}
	return ctx, nil
}

// After flushes logs.
func After(ctx context.Context, cmd *cli.Command) error {
	env := EnvFromContext(ctx)
	env.Log.Debug("Program ended", zap.Duration("elapsed", env.Uptime()), zap.Strings("parsed args", cmd.Args().Slice()))
	env.RestoreStdLog()
	return nil
}

var errStoryRequired = errors.New("STORY is required (or set story.path in the configuration)")

// storyArg returns the story path from the first argument or the
// configuration.
func storyArg(env *Env, cmd *cli.Command) (string, error) {
	path := cmd.Args().First()
	if path == "" && env.Cfg != nil {
		path = env.Cfg.Story.Path
	}
	if path == "" {
		return "", errStoryRequired
	}
	return path, nil
}

func writer(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}
