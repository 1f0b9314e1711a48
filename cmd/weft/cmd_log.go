package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/odvcencio/weft/pkg/object"
	"github.com/odvcencio/weft/pkg/repo"
	"github.com/spf13/cobra"
)

func newLogCmd(g *globalFlags) *cobra.Command {
	var oneline, topo, reverse, firstParent bool
	var limit int

	cmd := &cobra.Command{
		Use:   "log [revision...] [^revision...]",
		Short: "Show commit history",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, r, err := g.openRepo(cmd)
			if err != nil {
				return err
			}

			w := r.Walk()
			pushed := false
			for _, arg := range args {
				if hide, ok := strings.CutPrefix(arg, "^"); ok {
					h, err := r.ResolveRevision(hide)
					if err != nil {
						return err
					}
					if err := w.Hide(h); err != nil {
						return err
					}
					continue
				}
				h, err := r.ResolveRevision(arg)
				if err != nil {
					return err
				}
				if err := w.Push(h); err != nil {
					return err
				}
				pushed = true
			}
			if !pushed {
				if r.IsHeadUnborn() {
					return fmt.Errorf("log: current branch has no commits yet")
				}
				if err := w.PushHead(); err != nil {
					return err
				}
			}

			var mode repo.SortMode
			if topo {
				mode |= repo.SortTopological
			}
			if reverse {
				mode |= repo.SortReverse
			}
			w.Sorting(mode)
			if firstParent {
				w.SimplifyFirstParent()
			}

			out := cmd.OutOrStdout()
			n := 0
			for e, err := range w.Seq() {
				if err != nil {
					return err
				}
				if limit > 0 && n == limit {
					break
				}
				writeLogEntry(out, e, oneline)
				n++
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&oneline, "oneline", false, "one line per commit")
	cmd.Flags().IntVarP(&limit, "max-count", "n", 0, "limit the number of commits (0 for all)")
	cmd.Flags().BoolVar(&topo, "topo-order", false, "never show a parent before its children")
	cmd.Flags().BoolVar(&reverse, "reverse", false, "oldest first")
	cmd.Flags().BoolVar(&firstParent, "first-parent", false, "follow only first parents")
	return cmd
}

func writeLogEntry(out io.Writer, e repo.WalkEntry, oneline bool) {
	c := e.Commit
	if oneline {
		fmt.Fprintf(out, "%s %s\n", e.Hash.Short(), c.Summary())
		return
	}
	fmt.Fprintf(out, "commit %s\n", e.Hash.Hex())
	if len(c.Parents) > 1 {
		shorts := make([]string, len(c.Parents))
		for i, p := range c.Parents {
			shorts[i] = p.Short()
		}
		fmt.Fprintf(out, "Merge: %s\n", strings.Join(shorts, " "))
	}
	fmt.Fprintf(out, "Author: %s <%s>\n", c.Author.Name, c.Author.Email)
	fmt.Fprintf(out, "Date:   %s\n\n", c.Author.When.Format("Mon Jan 2 15:04:05 2006 -0700"))
	for _, line := range strings.Split(strings.TrimRight(c.Message, "\n"), "\n") {
		fmt.Fprintf(out, "    %s\n", line)
	}
	fmt.Fprintln(out)
}

func newMergeBaseCmd(g *globalFlags) *cobra.Command {
	var isAncestor, aheadBehind bool

	cmd := &cobra.Command{
		Use:   "merge-base <a> <b>",
		Short: "Find the best common ancestor of two commits",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, r, err := g.openRepo(cmd)
			if err != nil {
				return err
			}
			var hs [2]object.Hash
			for i, arg := range args {
				if hs[i], err = r.ResolveRevision(arg + "^0"); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			switch {
			case isAncestor:
				ok, err := r.IsDescendantOf(hs[1], hs[0])
				if err != nil {
					return err
				}
				if !ok && hs[0] != hs[1] {
					return fmt.Errorf("%s is not an ancestor of %s", args[0], args[1])
				}
				return nil
			case aheadBehind:
				ahead, behind, err := r.AheadBehind(hs[0], hs[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%d\t%d\n", ahead, behind)
				return nil
			}
			base, err := r.MergeBase(hs[0], hs[1])
			if errors.Is(err, repo.ErrNotFound) {
				return fmt.Errorf("merge-base: %s and %s have no common ancestor", args[0], args[1])
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(out, base.Hex())
			return nil
		},
	}
	cmd.Flags().BoolVar(&isAncestor, "is-ancestor", false, "fail unless <a> is an ancestor of <b>")
	cmd.Flags().BoolVar(&aheadBehind, "ahead-behind", false, "print how many commits <a> is ahead of and behind <b>")
	cmd.MarkFlagsMutuallyExclusive("is-ancestor", "ahead-behind")
	return cmd
}
