package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"trivia-quiz-service/internal/domain"
	transport "trivia-quiz-service/internal/transport/http"
)

// NewCategoriesCmd prints the categories offered by OpenTDB.
func NewCategoriesCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List trivia categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()
			return printCategories(cmd.Context(), rt.client, cmd.OutOrStdout())
		},
	}
}

func printCategories(ctx context.Context, lister transport.CategoryLister, out io.Writer) error {
	categories, err := lister.FetchCategories(ctx)
	if err != nil {
		fmt.Fprintln(out, domain.UserMessage(err))
		return err
	}
	for _, c := range categories {
		fmt.Fprintf(out, "%3d  %s\n", c.ID, c.Name)
	}
	return nil
}
