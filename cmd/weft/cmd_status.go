package main

import (
	"fmt"
	"io"

	"github.com/odvcencio/weft/pkg/diff"
	"github.com/odvcencio/weft/pkg/object"
	"github.com/odvcencio/weft/pkg/repo"
	"github.com/spf13/cobra"
)

func newStatusCmd(g *globalFlags) *cobra.Command {
	var short, ignored, noUntracked bool

	cmd := &cobra.Command{
		Use:   "status [pathspec...]",
		Short: "Show working tree status",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, r, err := g.openRepo(cmd)
			if err != nil {
				return err
			}
			entries, err := r.StatusWithOptions(repo.StatusOptions{
				Pathspec:         args,
				IncludeUntracked: !noUntracked,
				IncludeIgnored:   ignored,
				Renames:          r.Config().DiffRenames(),
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if short {
				writeShortStatus(out, entries)
				return nil
			}
			return writeLongStatus(out, r, entries)
		},
	}
	cmd.Flags().BoolVarP(&short, "short", "s", false, "two-column XY output")
	cmd.Flags().BoolVar(&ignored, "ignored", false, "also list ignored files")
	cmd.Flags().BoolVar(&noUntracked, "no-untracked", false, "hide untracked files")
	return cmd
}

func statusPath(e repo.StatusEntry) string {
	if e.RenamedFrom != "" {
		return e.RenamedFrom + " -> " + e.Path
	}
	return e.Path
}

func writeShortStatus(out io.Writer, entries []repo.StatusEntry) {
	for _, e := range entries {
		x, y := e.IndexStatus.Char(), e.WorkStatus.Char()
		switch e.WorkStatus {
		case diff.Untracked:
			x, y = '?', '?'
		case diff.Ignored:
			x, y = '!', '!'
		case diff.Conflicted:
			x, y = 'U', 'U'
		}
		fmt.Fprintf(out, "%c%c %s\n", x, y, statusPath(e))
	}
}

func writeLongStatus(out io.Writer, r *repo.Repo, entries []repo.StatusEntry) error {
	branch, err := r.CurrentBranch()
	if err != nil {
		return err
	}
	switch {
	case branch == "":
		h, err := r.HeadHash()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "HEAD detached at %s\n", h.Short())
	case r.IsHeadUnborn():
		fmt.Fprintf(out, "on %s (no commits yet)\n", branch)
	default:
		fmt.Fprintf(out, "on %s\n", branch)
	}
	if s := r.State(); s != repo.StateNone {
		fmt.Fprintf(out, "%s in progress\n", s)
	}

	var conflicts, staged, unstaged, untracked, ignored []string
	for _, e := range entries {
		switch {
		case e.IndexStatus == diff.Conflicted || e.WorkStatus == diff.Conflicted:
			conflicts = append(conflicts, "  ! "+e.Path)
			continue
		case e.WorkStatus == diff.Untracked:
			untracked = append(untracked, "  "+e.Path)
			continue
		case e.WorkStatus == diff.Ignored:
			ignored = append(ignored, "  "+e.Path)
			continue
		}
		if e.IndexStatus != diff.Unmodified {
			staged = append(staged, fmt.Sprintf("  %c %s", e.IndexStatus.Char(), statusPath(e)))
		}
		if e.WorkStatus != diff.Unmodified {
			unstaged = append(unstaged, fmt.Sprintf("  %c %s", e.WorkStatus.Char(), e.Path))
		}
	}

	for _, section := range []struct {
		title string
		lines []string
	}{
		{"conflicts:", conflicts},
		{"staged:", staged},
		{"unstaged:", unstaged},
		{"untracked:", untracked},
		{"ignored:", ignored},
	} {
		if len(section.lines) == 0 {
			continue
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, section.title)
		for _, l := range section.lines {
			fmt.Fprintln(out, l)
		}
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "nothing to commit, working tree clean")
	}
	return nil
}

func newDiffCmd(g *globalFlags) *cobra.Command {
	var staged, nameStatus, stat, renames bool
	var contextLines int

	cmd := &cobra.Command{
		Use:   "diff [<revision> [<revision>]] [-- pathspec...]",
		Short: "Show changes between trees, the index and the working tree",
		Long: "With no revision, the working tree is compared with the index, or the index " +
			"with HEAD under --staged. One revision compares its tree with the index and " +
			"two compare their trees.",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, r, err := g.openRepo(cmd)
			if err != nil {
				return err
			}
			revs, pathspec := args, []string(nil)
			if dash := cmd.ArgsLenAtDash(); dash >= 0 {
				revs, pathspec = args[:dash], args[dash:]
			}
			if len(revs) > 2 {
				return fmt.Errorf("diff: at most two revisions")
			}

			opts := diff.Options{Pathspec: pathspec, ContextLines: s.cfg.Diff.ContextLines}
			if cmd.Flags().Changed("unified") {
				opts.ContextLines = contextLines
				if contextLines == 0 {
					opts.ContextLines = -1
				}
			}
			d, err := computeDiff(r, revs, staged, opts)
			if err != nil {
				return err
			}
			if renames || r.Config().DiffRenames() {
				if err := d.FindSimilar(diff.FindOptions{Renames: true, RenameThreshold: s.cfg.Diff.RenameThreshold}); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			switch {
			case nameStatus:
				d.FormatNameStatus(out)
				return nil
			case stat:
				st, err := d.Stats()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, " %d files changed, %d insertions(+), %d deletions(-)\n", st.FilesChanged, st.Insertions, st.Deletions)
				return nil
			}
			return d.Format(out)
		},
	}
	cmd.Flags().BoolVar(&staged, "staged", false, "compare the index with HEAD")
	cmd.Flags().BoolVar(&nameStatus, "name-status", false, "list changed paths with their status")
	cmd.Flags().BoolVar(&stat, "stat", false, "print a change summary")
	cmd.Flags().BoolVarP(&renames, "find-renames", "M", false, "detect renames")
	cmd.Flags().IntVarP(&contextLines, "unified", "U", 3, "lines of context")
	cmd.MarkFlagsMutuallyExclusive("name-status", "stat")
	return cmd
}

func computeDiff(r *repo.Repo, revs []string, staged bool, opts diff.Options) (*diff.Diff, error) {
	if len(revs) == 2 {
		a, err := treeOf(r, revs[0])
		if err != nil {
			return nil, err
		}
		b, err := treeOf(r, revs[1])
		if err != nil {
			return nil, err
		}
		return diff.TreeToTree(r.Store, a, b, opts)
	}

	ix, err := r.Index()
	if err != nil {
		return nil, err
	}
	if len(revs) == 1 || staged {
		tree, err := r.HeadTree()
		if len(revs) == 1 {
			tree, err = treeOf(r, revs[0])
		}
		if err != nil {
			return nil, err
		}
		return diff.TreeToIndex(r.Store, tree, ix, opts)
	}
	if r.IsBare() {
		return nil, fmt.Errorf("diff: %w", repo.ErrBare)
	}
	return diff.IndexToWorkdir(r.Store, ix, r.Worktree(), opts)
}

// treeOf resolves a revision to a tree, peeling tags and commits.
func treeOf(r *repo.Repo, rev string) (object.Hash, error) {
	h, err := r.ResolveRevision(rev)
	if err != nil {
		return object.ZeroHash, err
	}
	h, typ, err := r.Store.Peel(h)
	if err != nil {
		return object.ZeroHash, err
	}
	switch typ {
	case object.TypeTree:
		return h, nil
	case object.TypeCommit:
		c, err := r.Store.ReadCommit(h)
		if err != nil {
			return object.ZeroHash, err
		}
		return c.TreeHash, nil
	}
	return object.ZeroHash, fmt.Errorf("%s is a %s, not a tree-ish: %w", rev, typ, repo.ErrInvalid)
}
