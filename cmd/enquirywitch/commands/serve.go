package commands

import (
	"context"
	"fmt"

	"github.com/enquirywitch/enquirywitch"
	"github.com/enquirywitch/enquirywitch/internal/security"
	"github.com/enquirywitch/enquirywitch/internal/server"
	"github.com/enquirywitch/enquirywitch/internal/store"
	"github.com/enquirywitch/enquirywitch/internal/submit"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Serve runs the story server until the context is cancelled.
func Serve(ctx context.Context, cmd *cli.Command) (err error) {
	env := EnvFromContext(ctx)

	path, err := storyArg(env, cmd)
	if err != nil {
		return err
	}
	if err := env.loadStoryConfig(path); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg := env.Cfg
	cfg.Story.Path = path
	if cmd.Bool("watch") {
		cfg.Server.Watch = true
	}
	if cmd.IsSet("port") {
		cfg.Server.Port = int(cmd.Int("port"))
	}
	if cmd.IsSet("host") {
		cfg.Server.Host = cmd.String("host")
	}
	security.AllowPrivateEndpoints = cfg.Form.AllowPrivateEndpoints

	rdr, err := enquirywitch.NewDefaultRenderer(env.Log)
	if err != nil {
		return err
	}
	story, err := enquirywitch.Load(path, rdr)
	if err != nil {
		return err
	}
	if verr := story.Validate(); verr != nil {
		for _, e := range multierr.Errors(verr) {
			env.Log.Warn("Story problem", zap.Error(e))
		}
	}

	st, err := store.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { err = multierr.Append(err, st.Close()) }()

	flow, err := submit.FromConfig(cfg.Form, cfg.Delivery, env.Log, submit.WithArchive(st))
	if err != nil {
		return fmt.Errorf("failed to configure submissions: %w", err)
	}
	defer func() { err = multierr.Append(err, flow.Delivery().Close()) }()
	if len(flow.Delivery().Outputs()) == 0 && !cfg.Form.EnablePreview {
		env.Log.Warn("No form endpoint configured, submissions will fail", zap.Error(submit.ErrNoOutputs))
	}

	srv, err := server.New(cfg, story,
		server.WithRenderer(rdr),
		server.WithFlow(flow),
		server.WithStore(st),
		server.WithLogger(env.Log),
	)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, srv.Close()) }()

	if cfg.Server.Watch {
		if err := srv.EnableWatch(); err != nil {
			return err
		}
	}

	env.Log.Info("Serving story",
		zap.String("story", story.Name),
		zap.String("path", path),
		zap.Int("passages", len(story.Passages())),
		zap.String("store", cfg.Store.Type),
		zap.Bool("watch", cfg.Server.Watch))
	return srv.ListenAndServe(ctx)
}
