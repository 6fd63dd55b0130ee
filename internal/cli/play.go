package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"trivia-quiz-service/internal/app"
	"trivia-quiz-service/internal/domain"
)

const maxAttempts = 3

// NewPlayCmd runs a quiz in the terminal.
func NewPlayCmd(configPath *string) *cobra.Command {
	var (
		categoryID int
		resume     bool
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play a quiz in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()
			return runPlay(cmd.Context(), rt.service, categoryID, resume, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&categoryID, "category", 0, "OpenTDB category id (0 for any)")
	cmd.Flags().BoolVar(&resume, "resume", false, "continue the cached quiz for the category")
	return cmd
}

func runPlay(ctx context.Context, service *app.QuizService, categoryID int, resume bool, in io.Reader, out io.Writer) error {
	defer service.Close()

	var (
		view domain.SessionView
		err  error
	)
	if resume {
		view, err = service.Resume(ctx, categoryID)
	} else {
		view, err = service.Start(ctx, categoryID)
	}
	if err != nil {
		fmt.Fprintln(out, domain.UserMessage(err))
		return err
	}

	reader := bufio.NewReader(in)
	if view.Phase != domain.PhaseFinished {
		for idx := view.CurrentIndex; idx < len(view.Questions); idx++ {
			question := view.Questions[idx]
			printQuestion(out, idx+1, len(view.Questions), question)

			if !question.Completed {
				choice, ok := getAnswer(reader, out, len(question.AllAnswers))
				fmt.Fprintln(out)
				if ok {
					outcome, err := service.SelectAnswer(ctx, idx, question.AllAnswers[choice])
					if err != nil {
						return err
					}
					if outcome.Correct {
						fmt.Fprintln(out, "Correct!")
					} else {
						fmt.Fprintf(out, "Wrong. Correct answer was %s\n", outcome.CorrectAnswer)
					}
				} else {
					fmt.Fprintf(out, "Skipping. Correct answer was %s\n", question.CorrectAnswer)
				}
			}

			result, err := service.Advance(ctx)
			if err != nil {
				return err
			}
			if result.Finished {
				break
			}
		}
	}

	fmt.Fprintf(out, "\n%s\n", domain.FinishedMessage)
	score := service.Score(ctx)
	fmt.Fprintf(out, "Score: %d/%d correct\n", score.CorrectAnswers, score.TotalAnswers)
	return nil
}

func printQuestion(out io.Writer, number, total int, question domain.Question) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Q%d/%d: %s\n\n", number, total, question.Text)
	for i, answer := range question.AllAnswers {
		fmt.Fprintf(out, "%c. %s\n", 'A'+i, answer)
	}
	if question.Completed {
		fmt.Fprintf(out, "\nAlready answered: %s\n", question.SelectedAnswer)
	}
	fmt.Fprintln(out)
}

func getAnswer(reader *bufio.Reader, out io.Writer, optionCount int) (int, bool) {
	if optionCount < 1 {
		return -1, false
	}

	maxLetter := byte('A' + optionCount - 1)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		userAnswer, err := reader.ReadString('\n')
		userAnswer = strings.ToUpper(strings.TrimSpace(userAnswer))
		if len(userAnswer) == 1 {
			letter := userAnswer[0]
			if letter >= 'A' && letter <= maxLetter {
				return int(letter - 'A'), true
			}
		}
		if err != nil {
			return -1, false
		}

		if attempt < maxAttempts {
			fmt.Fprintf(out, "\nInvalid input. Please enter a letter A-%c.\n", maxLetter)
		}
	}

	return -1, false
}
