package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"trivia-quiz-service/internal/app"
)

// NewScoreCmd prints or resets the persisted score.
func NewScoreCmd(configPath *string) *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Show the cumulative score",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()
			return runScore(cmd.Context(), rt.service, reset, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "delete the stored score")
	return cmd
}

func runScore(ctx context.Context, service *app.QuizService, reset bool, out io.Writer) error {
	if reset {
		if err := service.ResetScore(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "Score reset.")
		return nil
	}
	score := service.Score(ctx)
	fmt.Fprintf(out, "Answered: %d\nCorrect: %d\nIncorrect: %d\n",
		score.TotalAnswers, score.CorrectAnswers, score.IncorrectAnswers)
	return nil
}
