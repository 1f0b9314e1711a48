package main

import (
	"fmt"
	"io"

	"github.com/odvcencio/weft/pkg/diff3"
	"github.com/odvcencio/weft/pkg/repo"
	"github.com/spf13/cobra"
)

// mergeFlags are the conflict-handling flags shared by merge, cherry-pick,
// revert and rebase.
type mergeFlags struct {
	favor     string
	diff3     bool
	noRenames bool
}

func (f *mergeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.favor, "strategy-option", "X", "", "resolve conflicting hunks: ours, theirs or union")
	cmd.Flags().BoolVar(&f.diff3, "diff3", false, "include the base in conflict markers")
	cmd.Flags().BoolVar(&f.noRenames, "no-renames", false, "do not follow renames")
}

// options builds MergeOptions from the repository defaults, [merge]
// preference and the flags, in increasing precedence.
func (f *mergeFlags) options(s *session, r *repo.Repo) (repo.MergeOptions, error) {
	opts := r.DefaultMergeOptions()
	favor, err := s.cfg.favor()
	if err != nil {
		return opts, err
	}
	if f.favor != "" {
		if favor, err = parseFavor(f.favor); err != nil {
			return opts, err
		}
	}
	opts.Favor = favor
	if f.diff3 {
		opts.Style = diff3.StyleDiff3
	}
	if f.noRenames {
		opts.FindRenames = false
	}
	opts.RenameThreshold = s.cfg.Diff.RenameThreshold
	return opts, nil
}

func writeConflicts(out io.Writer, conflicts []string) error {
	for _, p := range conflicts {
		fmt.Fprintf(out, "CONFLICT: %s\n", p)
	}
	fmt.Fprintln(out, "fix the conflicts, add the results and commit")
	return fmt.Errorf("%d conflicted paths: %w", len(conflicts), repo.ErrConflicted)
}

func newMergeCmd(g *globalFlags) *cobra.Command {
	var mf mergeFlags
	var noFF, ffOnly, abort bool

	cmd := &cobra.Command{
		Use:   "merge <branch>",
		Short: "Merge a branch into the current branch",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, r, err := g.openRepo(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if abort {
				if r.State() != repo.StateMerge {
					return fmt.Errorf("merge --abort: no merge in progress: %w", repo.ErrInvalidState)
				}
				head, err := r.HeadHash()
				if err != nil {
					return err
				}
				return r.Reset(head, repo.ResetHard)
			}
			if len(args) != 1 {
				return fmt.Errorf("merge: need a branch to merge")
			}

			current, err := r.CurrentBranch()
			if err != nil {
				return err
			}
			if current == "" {
				return fmt.Errorf("merge: HEAD is detached: %w", repo.ErrInvalidState)
			}
			opts, err := mf.options(s, r)
			if err != nil {
				return err
			}
			opts.NoFastForward = noFF
			opts.FastForwardOnly = ffOnly
			opts.OursLabel = current
			opts.TheirsLabel = args[0]
			if opts.Signer, err = s.commitSigner(false, false, ""); err != nil {
				return err
			}

			res, err := r.MergeBranches(current, args[0], opts)
			if err != nil {
				return err
			}
			switch {
			case len(res.Conflicts) > 0:
				return writeConflicts(out, res.Conflicts)
			case res.UpToDate:
				fmt.Fprintln(out, "Already up to date.")
			case res.FastForward:
				fmt.Fprintf(out, "Fast-forward to %s\n", res.Commit.Short())
			default:
				fmt.Fprintf(out, "Merge made commit %s\n", res.Commit.Short())
			}
			return nil
		},
	}
	mf.register(cmd)
	cmd.Flags().BoolVar(&noFF, "no-ff", false, "always create a merge commit")
	cmd.Flags().BoolVar(&ffOnly, "ff-only", false, "refuse anything but a fast-forward")
	cmd.Flags().BoolVar(&abort, "abort", false, "abandon a conflicted merge")
	cmd.MarkFlagsMutuallyExclusive("no-ff", "ff-only")
	return cmd
}

func newCherryPickCmd(g *globalFlags) *cobra.Command {
	return newPickCmd(g, "cherry-pick", "Apply the change a commit introduces", false)
}

func newRevertCmd(g *globalFlags) *cobra.Command {
	return newPickCmd(g, "revert", "Commit the inverse of a commit's change", true)
}

func newPickCmd(g *globalFlags, name, short string, revert bool) *cobra.Command {
	var mf mergeFlags
	var mainline int

	cmd := &cobra.Command{
		Use:   name + " <commit>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, r, err := g.openRepo(cmd)
			if err != nil {
				return err
			}
			h, err := r.ResolveRevision(args[0] + "^0")
			if err != nil {
				return err
			}
			mopts, err := mf.options(s, r)
			if err != nil {
				return err
			}
			opts := repo.CherryPickOptions{Mainline: mainline, Merge: mopts}

			var res *repo.PickResult
			if revert {
				res, err = r.Revert(h, opts)
			} else {
				res, err = r.CherryPick(h, opts)
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(res.Conflicts) > 0 {
				return writeConflicts(out, res.Conflicts)
			}
			c, err := r.Store.ReadCommit(res.Commit)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "[%s] %s\n", res.Commit.Short(), c.Summary())
			return nil
		},
	}
	mf.register(cmd)
	cmd.Flags().IntVarP(&mainline, "mainline", "m", 0, "parent number to diff a merge commit against")
	return cmd
}
