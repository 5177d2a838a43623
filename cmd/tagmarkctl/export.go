package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newExportCmd(flags *rootFlags) *cobra.Command {
	var (
		tags   []string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "export bookmarks as a Netscape bookmark file",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(cmd *cobra.Command, a *app, _ []string) (err error) {
			var w io.Writer = cmd.OutOrStdout()
			toFile := output != "" && output != "-"
			if toFile {
				f, cerr := os.Create(output)
				if cerr != nil {
					return cerr
				}
				defer func() {
					if cerr := f.Close(); err == nil {
						err = cerr
					}
				}()
				w = f
			}

			n, err := a.bookmarks.ExportNetscape(cmd.Context(), w, tags)
			if err != nil {
				return err
			}
			if toFile {
				fmt.Fprintf(cmd.ErrOrStderr(), "exported %d bookmarks to %s\n", n, output)
			}
			return nil
		}),
	}

	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "only export bookmarks carrying every given tag")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")

	return cmd
}
