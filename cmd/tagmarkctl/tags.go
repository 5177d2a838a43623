package main

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tagmarkapp/tagmark-server/internal/domain"
	"github.com/tagmarkapp/tagmark-server/internal/service"
)

func newTagsCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "list and maintain tags",
	}

	cmd.AddCommand(
		newTagsListCmd(flags),
		newTagsRenameCmd(flags),
		newTagsDeleteCmd(flags),
		newTagsRecountCmd(flags),
	)
	return cmd
}

func newTagsListCmd(flags *rootFlags) *cobra.Command {
	var sortBy string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "list tags with their bookmark counts",
		Args:    cobra.NoArgs,
		RunE: withApp(flags, func(cmd *cobra.Command, a *app, _ []string) error {
			if sortBy != "name" && sortBy != "count" {
				return fmt.Errorf("invalid --sort %q: must be name or count", sortBy)
			}

			tags, err := a.tags.ListTags(cmd.Context())
			if err != nil {
				return err
			}
			if sortBy == "count" {
				slices.SortStableFunc(tags, func(x, y *domain.Tag) int {
					return cmp.Compare(y.Count, x.Count)
				})
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TAG\tCOUNT")
			for _, t := range tags {
				fmt.Fprintf(tw, "%s\t%d\n", t.Name, t.Count)
			}
			return tw.Flush()
		}),
	}

	cmd.Flags().StringVar(&sortBy, "sort", "name", "sort order [name|count]")
	return cmd
}

func newTagsRenameCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rename FROM [TO]",
		Short: "rename a tag on every bookmark; without TO the tag is deleted",
		Args:  cobra.RangeArgs(1, 2),
		RunE: withApp(flags, func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			from, to := strings.TrimSpace(args[0]), ""
			if len(args) == 2 {
				to = strings.TrimSpace(args[1])
			}

			if err := a.tags.ScheduleRename(ctx, from, to); err != nil {
				return err
			}

			var err error
			switch {
			case to == "":
				err = a.drainChain(ctx, service.TaskTagDelete, from)
			case to == from:
				_, err = a.drain(ctx)
			default:
				err = a.drainChain(ctx, service.TaskTagRename, from, to)
			}
			if err != nil {
				return fmt.Errorf("rename tag %s: %w", from, err)
			}

			if to == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "deleted tag %s\n", from)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "renamed tag %s to %s\n", from, to)
			}
			return nil
		}),
	}
}

func newTagsDeleteCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "delete NAME...",
		Aliases: []string{"rm"},
		Short:   "remove tags from every bookmark",
		Args:    cobra.MinimumNArgs(1),
		RunE: withApp(flags, func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			for _, name := range args {
				if err := a.tags.ScheduleDelete(ctx, name); err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
			}
			for _, name := range args {
				if err := a.drainChain(ctx, service.TaskTagDelete, strings.TrimSpace(name)); err != nil {
					return fmt.Errorf("delete tag %s: %w", name, err)
				}
			}
			for _, name := range args {
				fmt.Fprintf(cmd.OutOrStdout(), "deleted tag %s\n", name)
			}
			return nil
		}),
	}
}

func newTagsRecountCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "recount [NAME...]",
		Short: "recompute tag counts from bookmarks; all tags when no name is given",
		RunE: withApp(flags, func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			if len(args) > 0 {
				if err := a.tags.RecountMany(ctx, args); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "recounted %d tags\n", len(args))
				return nil
			}

			n, err := a.tags.RecountAll(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recounted %d tags\n", n)
			return nil
		}),
	}
}
