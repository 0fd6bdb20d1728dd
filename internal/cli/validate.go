package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"quizpack/internal/app"
	"quizpack/internal/infra/memory"
)

// NewValidateCmd checks pack files with the same rules applied to uploads.
func NewValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <pack.json>...",
		Short: "Validate question pack files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateFiles(cmd, args)
		},
	}
}

func validateFiles(cmd *cobra.Command, paths []string) error {
	out := cmd.OutOrStdout()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver := app.NewPackResolver(memory.NewStore(), nil, app.ResolverOptions{Logger: logger})

	failed := 0
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			failed++
			fmt.Fprintf(out, "FAIL %s: %v\n", path, err)
			continue
		}
		pack, err := resolver.LoadUploadedPack(cmd.Context(), data)
		if err != nil {
			failed++
			fmt.Fprintf(out, "FAIL %s: %v\n", path, err)
			continue
		}
		fmt.Fprintf(out, "ok   %s: pack %q (%s), %d questions in %d categories\n",
			path, pack.ID, pack.Name, pack.QuestionCount(), len(pack.Categories))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d pack files invalid", failed, len(paths))
	}
	return nil
}
