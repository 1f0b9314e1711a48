package main

import (
	"fmt"

	"github.com/odvcencio/weft/pkg/repo"
	"github.com/spf13/cobra"
)

func newBranchCmd(g *globalFlags) *cobra.Command {
	var del, rename, force bool

	cmd := &cobra.Command{
		Use:   "branch [name [start]]",
		Short: "List, create, rename or delete branches",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, r, err := g.openRepo(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			switch {
			case del:
				if len(args) != 1 {
					return fmt.Errorf("branch -d: need exactly one branch name")
				}
				h, err := r.ResolveRevision("refs/heads/" + args[0])
				if err != nil {
					return err
				}
				if err := r.DeleteBranch(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(out, "Deleted branch %s (was %s).\n", args[0], h.Short())
				return nil
			case rename:
				if len(args) != 2 {
					return fmt.Errorf("branch -m: need old and new names")
				}
				_, err := r.RenameBranch(args[0], args[1], force)
				return err
			case len(args) == 0:
				branches, err := r.Branches()
				if err != nil {
					return err
				}
				for _, b := range branches {
					marker := " "
					if b.IsHead {
						marker = "*"
					}
					fmt.Fprintf(out, "%s %s %s\n", marker, b.Name, b.Hash.Short())
				}
				return nil
			}

			start := "HEAD"
			if len(args) == 2 {
				start = args[1]
			}
			target, err := r.ResolveRevision(start + "^0")
			if err != nil {
				return err
			}
			b, err := r.CreateBranch(args[0], target, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Created branch %s at %s\n", b.Name, b.Hash.Short())
			return nil
		},
	}
	cmd.Flags().BoolVarP(&del, "delete", "d", false, "delete a branch")
	cmd.Flags().BoolVarP(&rename, "move", "m", false, "rename a branch")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing branch")
	cmd.MarkFlagsMutuallyExclusive("delete", "move")
	return cmd
}

func newTagCmd(g *globalFlags) *cobra.Command {
	var del, annotate, force bool
	var message string

	cmd := &cobra.Command{
		Use:   "tag [name [target]]",
		Short: "List, create or delete tags",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, r, err := g.openRepo(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				tags, err := r.Tags()
				if err != nil {
					return err
				}
				for _, t := range tags {
					fmt.Fprintln(out, t.Name)
				}
				return nil
			}
			if del {
				return r.DeleteTag(args[0])
			}

			start := "HEAD"
			if len(args) == 2 {
				start = args[1]
			}
			target, err := r.ResolveRevision(start)
			if err != nil {
				return err
			}
			var t *repo.Tag
			if annotate || message != "" {
				t, err = r.CreateAnnotatedTag(args[0], target, nil, message, force)
			} else {
				t, err = r.CreateTag(args[0], target, force)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Tagged %s as %s\n", t.Target.Short(), t.Name)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&del, "delete", "d", false, "delete a tag")
	cmd.Flags().BoolVarP(&annotate, "annotate", "a", false, "create an annotated tag")
	cmd.Flags().StringVarP(&message, "message", "m", "", "annotated tag message")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "replace an existing tag")
	return cmd
}
