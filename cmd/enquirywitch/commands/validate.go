package commands

import (
	"context"
	"fmt"
	"slices"

	"github.com/enquirywitch/enquirywitch"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Validate loads a story and reports links to passages that do not exist.
func Validate(ctx context.Context, cmd *cli.Command) error {
	env := EnvFromContext(ctx)

	path, err := storyArg(env, cmd)
	if err != nil {
		return err
	}

	rdr, err := enquirywitch.NewDefaultRenderer(env.Log)
	if err != nil {
		return err
	}
	story, err := enquirywitch.Load(path, rdr)
	if err != nil {
		return err
	}

	w := writer(cmd)
	fmt.Fprintf(w, "%s: %d passages, start %q\n", story.Name, len(story.Passages()), startName(story))

	tags := map[string]int{}
	for _, p := range story.Passages() {
		for _, t := range p.Tags {
			tags[t]++
		}
	}
	if len(tags) > 0 {
		names := make([]string, 0, len(tags))
		for t := range tags {
			names = append(names, t)
		}
		slices.Sort(names)
		for _, t := range names {
			fmt.Fprintf(w, "  tag %-20s %d\n", t, tags[t])
		}
	}

	problems := multierr.Errors(story.Validate())
	for _, p := range problems {
		fmt.Fprintf(w, "  %v\n", p)
	}
	if len(problems) > 0 {
		env.Log.Debug("Validation failed", zap.Int("problems", len(problems)))
		return fmt.Errorf("%s: %d problem(s) found", path, len(problems))
	}
	fmt.Fprintln(w, "  no problems found")
	return nil
}

func startName(story *enquirywitch.Story) string {
	if p := story.Start(); p != nil {
		return p.Name
	}
	return ""
}
