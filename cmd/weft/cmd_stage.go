package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/odvcencio/weft/pkg/diff"
	"github.com/odvcencio/weft/pkg/repo"
	"github.com/spf13/cobra"
)

func newAddCmd(g *globalFlags) *cobra.Command {
	var update, verbose bool

	cmd := &cobra.Command{
		Use:   "add <pathspec>...",
		Short: "Stage working tree content",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, r, err := g.openRepo(cmd)
			if err != nil {
				return err
			}
			if len(args) == 0 && !update {
				return fmt.Errorf("add: nothing specified, nothing added")
			}
			out := cmd.OutOrStdout()
			cb := func(p, _ string) (bool, error) {
				if verbose {
					fmt.Fprintf(out, "add '%s'\n", p)
				}
				return true, nil
			}
			if update {
				return r.Update(args, cb)
			}
			return r.Add(args, cb)
		},
	}
	cmd.Flags().BoolVarP(&update, "update", "u", false, "only refresh tracked files, dropping deleted ones")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list staged paths")
	return cmd
}

func newRmCmd(g *globalFlags) *cobra.Command {
	var cached bool

	cmd := &cobra.Command{
		Use:   "rm <pathspec>...",
		Short: "Remove paths from the index and working tree",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, r, err := g.openRepo(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			cb := func(p, _ string) (bool, error) {
				if !cached && r.Worktree() != nil {
					if err := r.Worktree().Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
						return false, err
					}
				}
				fmt.Fprintf(out, "rm '%s'\n", p)
				return true, nil
			}
			return r.Remove(args, cb)
		},
	}
	cmd.Flags().BoolVar(&cached, "cached", false, "keep the working tree files")
	return cmd
}

func newStageLinesCmd(g *globalFlags) *cobra.Command {
	var list, unstage bool

	cmd := &cobra.Command{
		Use:   "stage-lines <path> [selection]",
		Short: "Stage or unstage individual changed lines of a file",
		Long: "Selection numbers the changed lines of the file's patch from 1, " +
			"as printed by --list, e.g. \"1,3-5\" or \"all\".",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, r, err := g.openRepo(cmd)
			if err != nil {
				return err
			}
			path := args[0]
			changed, err := changedLines(r, path, unstage)
			if err != nil {
				return err
			}

			if list || len(args) == 1 {
				out := cmd.OutOrStdout()
				for i, l := range changed {
					fmt.Fprintf(out, "%4d %c%s", i+1, l.Origin, l.Content)
					if !strings.HasSuffix(l.Content, "\n") {
						fmt.Fprintln(out)
					}
				}
				return nil
			}

			picks, err := parseLineSelection(args[1], len(changed))
			if err != nil {
				return err
			}
			selected := make([]diff.Line, 0, len(picks))
			for _, i := range picks {
				selected = append(selected, changed[i])
			}
			return r.StageLines(path, selected, unstage)
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "print the numbered changed lines")
	cmd.Flags().BoolVar(&unstage, "unstage", false, "select from the staged change and unstage it")
	return cmd
}

// changedLines returns the added and deleted lines of path's unstaged
// patch, or of its staged patch when staged is set, in patch order.
func changedLines(r *repo.Repo, path string, staged bool) ([]diff.Line, error) {
	ix, err := r.Index()
	if err != nil {
		return nil, err
	}
	opts := diff.Options{Pathspec: []string{path}, IncludeUntracked: !staged}
	var d *diff.Diff
	if staged {
		tree, err := r.HeadTree()
		if err != nil {
			return nil, err
		}
		d, err = diff.TreeToIndex(r.Store, tree, ix, opts)
		if err != nil {
			return nil, err
		}
	} else if d, err = diff.IndexToWorkdir(r.Store, ix, r.Worktree(), opts); err != nil {
		return nil, err
	}

	var lines []diff.Line
	for p, err := range d.Patches() {
		if err != nil {
			return nil, err
		}
		if p.Delta.Path() != path {
			continue
		}
		for _, h := range p.Hunks {
			for _, l := range h.Lines {
				if l.Origin != diff.LineContext {
					lines = append(lines, l)
				}
			}
		}
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("stage-lines: %s has no changes to select: %w", path, repo.ErrNotFound)
	}
	return lines, nil
}

// parseLineSelection turns "all" or a comma list of 1-based numbers and
// ranges into sorted, de-duplicated 0-based indexes below n.
func parseLineSelection(spec string, n int) ([]int, error) {
	spec = strings.TrimSpace(spec)
	if spec == "all" {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out, nil
	}
	seen := make([]bool, n)
	for _, part := range strings.Split(spec, ",") {
		lo, hi, isRange := strings.Cut(strings.TrimSpace(part), "-")
		from, err := strconv.Atoi(lo)
		if err != nil {
			return nil, fmt.Errorf("line selection %q: %w", part, err)
		}
		to := from
		if isRange {
			if to, err = strconv.Atoi(hi); err != nil {
				return nil, fmt.Errorf("line selection %q: %w", part, err)
			}
		}
		if from < 1 || to > n || from > to {
			return nil, fmt.Errorf("line selection %q: out of range 1-%d", part, n)
		}
		for i := from; i <= to; i++ {
			seen[i-1] = true
		}
	}
	var out []int
	for i, ok := range seen {
		if ok {
			out = append(out, i)
		}
	}
	return out, nil
}
