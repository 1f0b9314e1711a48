package main

import (
	"fmt"

	"github.com/odvcencio/weft/pkg/repo"
	"github.com/spf13/cobra"
)

func newCheckoutCmd(g *globalFlags) *cobra.Command {
	var force bool
	var newBranch string

	cmd := &cobra.Command{
		Use:   "checkout <branch|revision>",
		Short: "Switch HEAD, the index and the working tree",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, r, err := g.openRepo(cmd)
			if err != nil {
				return err
			}
			target := ""
			if len(args) == 1 {
				target = args[0]
			}
			if newBranch != "" {
				start := target
				if start == "" {
					start = "HEAD"
				}
				h, err := r.ResolveRevision(start + "^0")
				if err != nil {
					return err
				}
				if _, err := r.CreateBranch(newBranch, h, false); err != nil {
					return err
				}
				target = newBranch
			}
			if target == "" {
				return fmt.Errorf("checkout: need a branch or revision")
			}

			if err := r.Checkout(target, repo.CheckoutOptions{Force: force}); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if branch, _ := r.CurrentBranch(); branch != "" {
				fmt.Fprintf(out, "Switched to branch '%s'\n", branch)
				return nil
			}
			h, err := r.HeadHash()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "HEAD is now at %s\n", h.Short())
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "discard local changes in the way")
	cmd.Flags().StringVarP(&newBranch, "branch", "b", "", "create this branch and switch to it")
	return cmd
}

func newResetCmd(g *globalFlags) *cobra.Command {
	var soft, hard bool

	cmd := &cobra.Command{
		Use:   "reset [--soft|--mixed|--hard] [<revision>] [-- path...]",
		Short: "Move HEAD, or unstage paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, r, err := g.openRepo(cmd)
			if err != nil {
				return err
			}
			revs, paths := args, []string(nil)
			if dash := cmd.ArgsLenAtDash(); dash >= 0 {
				revs, paths = args[:dash], args[dash:]
			}
			if len(paths) > 0 {
				if len(revs) > 0 || soft || hard {
					return fmt.Errorf("reset: paths cannot be combined with a revision or mode")
				}
				return r.ResetPaths(paths)
			}
			if len(revs) > 1 {
				return fmt.Errorf("reset: at most one revision")
			}

			rev := "HEAD"
			if len(revs) == 1 {
				rev = revs[0]
			}
			h, err := r.ResolveRevision(rev + "^0")
			if err != nil {
				return err
			}
			mode := repo.ResetMixed
			switch {
			case soft:
				mode = repo.ResetSoft
			case hard:
				mode = repo.ResetHard
			}
			if err := r.Reset(h, mode); err != nil {
				return err
			}
			if mode == repo.ResetHard {
				fmt.Fprintf(cmd.OutOrStdout(), "HEAD is now at %s\n", h.Short())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&soft, "soft", false, "move HEAD only")
	cmd.Flags().Bool("mixed", false, "move HEAD and reset the index (default)")
	cmd.Flags().BoolVar(&hard, "hard", false, "move HEAD and reset the index and working tree")
	cmd.MarkFlagsMutuallyExclusive("soft", "mixed", "hard")
	return cmd
}
