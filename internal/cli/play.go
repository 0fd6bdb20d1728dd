package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"quizpack/internal/app"
	"quizpack/internal/config"
	"quizpack/internal/domain"
)

// NewPlayCmd runs a quiz in the terminal against the configured store.
func NewPlayCmd(configPath *string) *cobra.Command {
	var (
		opts   app.StartOptions
		resume bool
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play a quiz in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger := newLogger(cfg, os.Stderr)
			rt, err := bootstrap(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			rt.discover(cmd.Context())

			out := cmd.OutOrStdout()
			player := app.NewPlayer(app.NewEngine(), rt.resolver, rt.tracker, rt.auth, app.PlayerOptions{
				Logger: logger,
				Warn:   func(msg string) { fmt.Fprintf(out, "(%s)\n", msg) },
			})
			return playLoop(cmd.Context(), cmd.InOrStdin(), out, player, opts, resume)
		},
	}
	cmd.Flags().StringVar(&opts.Category, "category", app.CategoryAll, "category to play, or \"all\"")
	cmd.Flags().BoolVar(&opts.ShuffleQuestions, "shuffle", true, "shuffle questions within each difficulty")
	cmd.Flags().BoolVar(&opts.ShuffleOptions, "shuffle-options", false, "shuffle answer options")
	cmd.Flags().BoolVar(&resume, "resume", false, "continue the saved incomplete session")
	return cmd
}

func playLoop(ctx context.Context, in io.Reader, out io.Writer, player *app.Player, opts app.StartOptions, resume bool) error {
	var (
		q   domain.Question
		err error
	)
	if resume {
		q, err = player.Resume(ctx)
	} else {
		q, err = player.Start(ctx, opts)
	}
	if err != nil {
		return err
	}

	lines := bufio.NewScanner(in)
	for {
		printQuestion(out, q, player.Status())
		fmt.Fprintf(out, "answer [1-%d], h for a hint, q to quit: ", len(q.Options))
		if !lines.Scan() {
			fmt.Fprintln(out, "\nsession saved; continue with --resume")
			return lines.Err()
		}
		input := strings.TrimSpace(lines.Text())

		switch strings.ToLower(input) {
		case "q", "quit":
			fmt.Fprintln(out, "session saved; continue with --resume")
			return nil
		case "h", "hint":
			hint, ok, err := player.Hint(ctx)
			if err != nil {
				return err
			}
			if ok {
				fmt.Fprintf(out, "hint: %s\n", hint)
			} else {
				fmt.Fprintln(out, "no more hints")
			}
			continue
		}

		choice, convErr := strconv.Atoi(input)
		if convErr != nil {
			fmt.Fprintln(out, "please enter an option number")
			continue
		}
		fb, err := player.Answer(ctx, choice-1)
		if errors.Is(err, domain.ErrOptionNotFound) {
			fmt.Fprintf(out, "choose between 1 and %d\n", len(q.Options))
			continue
		}
		if err != nil {
			return err
		}
		if fb.Correct {
			fmt.Fprintf(out, "%s (+%d)\n", fb.Explanation, fb.PointsAwarded)
		} else {
			fmt.Fprintf(out, "%s The answer was %d. %s\n", fb.Explanation, fb.CorrectIndex+1, q.Options[fb.CorrectIndex])
		}

		step, err := player.Next(ctx)
		if err != nil {
			return err
		}
		if step.Complete {
			printResults(out, step)
			return nil
		}
		q = step.Question
	}
}

func printQuestion(out io.Writer, q domain.Question, st app.SessionStatus) {
	fmt.Fprintf(out, "\n[%d/%d] %s · %s · %d pts\n", st.CurrentIndex+1, st.QuestionCount, q.Category, q.Difficulty, q.Points)
	fmt.Fprintln(out, q.Text)
	if q.CodeSnippet != "" {
		fmt.Fprintf(out, "\n%s\n\n", q.CodeSnippet)
	}
	for i, opt := range q.Options {
		fmt.Fprintf(out, "  %d) %s\n", i+1, opt)
	}
}

func printResults(out io.Writer, step app.Step) {
	res := step.Results
	fmt.Fprintf(out, "\nfinished %s: %d/%d points, %d of %d correct (%d%%)\n",
		res.Category, res.Score, res.TotalPossiblePoints, res.CorrectCount, res.QuestionCount, res.Percentage)
	for _, d := range domain.Difficulties {
		if dr, ok := res.ByDifficulty[d]; ok {
			fmt.Fprintf(out, "  %-6s %d/%d\n", d, dr.Correct, dr.Answered)
		}
	}
	if res.HintsUsed > 0 {
		fmt.Fprintf(out, "hints used: %d\n", res.HintsUsed)
	}
	if step.NewBest {
		fmt.Fprintln(out, "new high score!")
	}
}
