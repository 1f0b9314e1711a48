package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/odvcencio/weft/pkg/repo"
	"github.com/spf13/cobra"
)

func newRebaseCmd(g *globalFlags) *cobra.Command {
	var mf mergeFlags
	var onto string
	var cont, abort bool

	cmd := &cobra.Command{
		Use:   "rebase [--onto <newbase>] <upstream> [<branch>]",
		Short: "Replay commits on top of another base",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, r, err := g.openRepo(cmd)
			if err != nil {
				return err
			}
			mopts, err := mf.options(s, r)
			if err != nil {
				return err
			}
			opts := repo.RebaseOptions{Merge: mopts}
			if opts.Signer, err = s.commitSigner(false, false, ""); err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			switch {
			case abort:
				rb, err := r.RebaseOpen(opts)
				if err != nil {
					return err
				}
				return rb.Abort()
			case cont:
				rb, err := r.RebaseOpen(opts)
				if err != nil {
					return err
				}
				if rb.CurrentOperation() >= 0 && rb.State() != repo.RebaseCompleted {
					if err := commitRebaseStep(out, rb, rb.Operation(rb.CurrentOperation())); err != nil {
						return err
					}
				}
				return runRebase(out, rb)
			}

			if len(args) == 0 {
				return fmt.Errorf("rebase: need an upstream")
			}
			branch := ""
			if len(args) == 2 {
				branch = args[1]
			}
			rb, err := r.RebaseInit(branch, args[0], onto, opts)
			if err != nil {
				return err
			}
			return runRebase(out, rb)
		},
	}
	mf.register(cmd)
	cmd.Flags().StringVar(&onto, "onto", "", "replay onto this commit instead of upstream")
	cmd.Flags().BoolVar(&cont, "continue", false, "commit the resolved step and keep going")
	cmd.Flags().BoolVar(&abort, "abort", false, "restore the branch as it was before the rebase")
	cmd.MarkFlagsMutuallyExclusive("continue", "abort")
	return cmd
}

// runRebase applies the remaining operations, stopping at the first
// conflict, and finishes the rebase when none are left.
func runRebase(out io.Writer, rb *repo.Rebase) error {
	for {
		step, err := rb.Next()
		if errors.Is(err, repo.ErrIterationOver) {
			break
		}
		if err != nil {
			return err
		}
		if len(step.Conflicts) > 0 {
			fmt.Fprintf(out, "could not apply %s\n", step.Operation.ID.Short())
			return writeConflicts(out, step.Conflicts)
		}
		if err := commitRebaseStep(out, rb, step.Operation); err != nil {
			return err
		}
	}
	if err := rb.Finish(nil); err != nil {
		return err
	}
	fmt.Fprintf(out, "Successfully rebased onto %s\n", rb.Onto().Short())
	return nil
}

func commitRebaseStep(out io.Writer, rb *repo.Rebase, op repo.RebaseOperation) error {
	h, err := rb.Commit(nil, nil, "")
	if errors.Is(err, repo.ErrApplied) {
		fmt.Fprintf(out, "skipped %s: already applied\n", op.ID.Short())
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "applied %s as %s\n", op.ID.Short(), h.Short())
	return nil
}
