package tui

import (
	"context"
	"errors"
	"fmt"

	"github.com/Veraticus/tandem/internal/importer"
	tea "github.com/charmbracelet/bubbletea"
)

// RunReview shows the review screen and returns the reviewed rows and whether
// the user confirmed them. A canceled ctx ends the program with ctx's error.
func RunReview(ctx context.Context, preview *importer.Preview, threshold float64, opts ...tea.ProgramOption) ([]importer.Row, bool, error) {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}, opts...)
	program := tea.NewProgram(NewReviewModel(preview, threshold), opts...)

	final, err := program.Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, false, fmt.Errorf("review screen failed: %w", err)
	}

	model, ok := final.(ReviewModel)
	if !ok {
		return nil, false, fmt.Errorf("review screen returned %T", final)
	}
	return model.Rows(), model.Accepted(), nil
}
