package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newImportCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE...",
		Short: "import Netscape bookmark files",
		Long: "Import one or more Netscape bookmark files, as exported by browsers.\n" +
			"Existing URLs are kept and imported entries are added alongside them.",
		Args: cobra.MinimumNArgs(1),
		RunE: withApp(flags, func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			total := 0
			for _, path := range args {
				n, err := importFile(cmd, a, path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: imported %d bookmarks\n", path, n)
				total += n
			}

			if _, err := a.drain(ctx); err != nil {
				return err
			}
			if len(args) > 1 {
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d bookmarks in total\n", total)
			}
			return nil
		}),
	}
}

func importFile(cmd *cobra.Command, a *app, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	return a.bookmarks.ImportNetscape(cmd.Context(), f)
}
