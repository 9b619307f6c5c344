package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/enquirywitch/enquirywitch"
	"github.com/enquirywitch/enquirywitch/internal/form"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// Render prints the HTML of one passage, optionally against saved state
// and form data.
func Render(ctx context.Context, cmd *cli.Command) error {
	env := EnvFromContext(ctx)

	if cmd.Args().Len() != 2 {
		return errors.New("render requires STORY and PASSAGE")
	}
	path, ref := cmd.Args().Get(0), cmd.Args().Get(1)
	if err := env.loadStoryConfig(path); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	rdr, err := enquirywitch.NewDefaultRenderer(env.Log)
	if err != nil {
		return err
	}
	story, err := enquirywitch.Load(path, rdr)
	if err != nil {
		return err
	}

	var problems int
	sess := enquirywitch.NewSession(story,
		enquirywitch.WithOptions(env.Cfg.Story.Options),
		enquirywitch.WithListener(enquirywitch.ListenerFunc(func(name string, args ...any) {
			if name != enquirywitch.EventStoryError {
				return
			}
			problems++
			fields := []zap.Field{zap.String("passage", ref)}
			if len(args) > 0 {
				if e, ok := args[0].(error); ok {
					fields = append(fields, zap.Error(e))
				}
			}
			if len(args) > 1 {
				fields = append(fields, zap.Any("label", args[1]))
			}
			env.Log.Warn("Render problem", fields...)
		})),
	)

	if file := cmd.String("state"); file != "" {
		var state map[string]any
		if err := readJSON(file, &state); err != nil {
			return fmt.Errorf("unable to read state: %w", err)
		}
		for k, v := range state {
			sess.Set(k, v)
		}
	}
	if file := cmd.String("formdata"); file != "" {
		var data form.Data
		if err := readJSON(file, &data); err != nil {
			return fmt.Errorf("unable to read form data: %w", err)
		}
		for _, f := range data {
			sess.SetFormValue(f.Key, f.Value)
		}
	}

	out, err := sess.Render(ref)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(writer(cmd), out); err != nil {
		return fmt.Errorf("unable to write output: %w", err)
	}
	if problems > 0 {
		env.Log.Warn("Passage rendered with problems", zap.Int("problems", problems))
	}
	return nil
}

func readJSON(file string, v any) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
