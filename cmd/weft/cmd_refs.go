package main

import (
	"fmt"

	"github.com/odvcencio/weft/pkg/repo"
	"github.com/spf13/cobra"
)

func newUpdateRefCmd(g *globalFlags) *cobra.Command {
	var message string
	var del, noDeref bool

	cmd := &cobra.Command{
		Use:   "update-ref <ref> [<revision>]",
		Short: "Point a reference at an object, following symbolic references",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, r, err := g.openRepo(cmd)
			if err != nil {
				return err
			}
			name := args[0]
			if del {
				return r.DeleteReference(name)
			}
			if len(args) != 2 {
				return fmt.Errorf("update-ref: missing revision")
			}
			h, err := r.ResolveRevision(args[1])
			if err != nil {
				return err
			}
			if noDeref {
				_, err = r.CreateReference(name, h, true, message)
				return err
			}
			return r.UpdateTerminal(name, h, nil, message)
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "reflog message")
	cmd.Flags().BoolVarP(&del, "delete", "d", false, "delete the reference")
	cmd.Flags().BoolVar(&noDeref, "no-deref", false, "overwrite the reference itself, even if symbolic")
	return cmd
}

func newSymbolicRefCmd(g *globalFlags) *cobra.Command {
	var message string
	var short bool

	cmd := &cobra.Command{
		Use:   "symbolic-ref <name> [<target>]",
		Short: "Read or write a symbolic reference",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, r, err := g.openRepo(cmd)
			if err != nil {
				return err
			}
			if len(args) == 2 {
				_, err := r.CreateSymbolicReference(args[0], args[1], true, message)
				return err
			}
			ref, err := r.Lookup(args[0])
			if err != nil {
				return err
			}
			if !ref.IsSymbolic() {
				return fmt.Errorf("symbolic-ref: %s is not a symbolic reference: %w", args[0], repo.ErrInvalid)
			}
			target := ref.Target
			if short {
				target = repo.ShortRefName(target)
			}
			fmt.Fprintln(cmd.OutOrStdout(), target)
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "reflog message")
	cmd.Flags().BoolVar(&short, "short", false, "print the target without its refs/ prefix")
	return cmd
}

func newShowRefCmd(g *globalFlags) *cobra.Command {
	var withHead, pack bool

	cmd := &cobra.Command{
		Use:   "show-ref [prefix]",
		Short: "List references",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, r, err := g.openRepo(cmd)
			if err != nil {
				return err
			}
			if pack {
				if err := r.PackRefs(); err != nil {
					return err
				}
			}
			prefix := "refs/"
			if len(args) == 1 {
				prefix = args[0]
			}
			out := cmd.OutOrStdout()
			if withHead {
				if h, err := r.HeadHash(); err == nil {
					fmt.Fprintf(out, "%s HEAD\n", h.Hex())
				}
			}
			refs, err := r.References(prefix)
			if err != nil {
				return err
			}
			for _, ref := range refs {
				if ref.IsSymbolic() {
					fmt.Fprintf(out, "ref: %s %s\n", ref.Target, ref.Name)
					continue
				}
				fmt.Fprintf(out, "%s %s\n", ref.Hash.Hex(), ref.Name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withHead, "head", false, "include HEAD")
	cmd.Flags().BoolVar(&pack, "pack", false, "pack loose references first")
	return cmd
}

func newReflogCmd(g *globalFlags) *cobra.Command {
	var drop int
	var rewrite, del bool

	cmd := &cobra.Command{
		Use:   "reflog [ref]",
		Short: "Show or edit a reference's log",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, r, err := g.openRepo(cmd)
			if err != nil {
				return err
			}
			name := "HEAD"
			if len(args) == 1 {
				name = args[0]
			}
			switch {
			case del:
				return r.DeleteReflog(name)
			case drop >= 0:
				return r.DropReflogEntry(name, drop, rewrite)
			}

			out := cmd.OutOrStdout()
			i := 0
			for e, err := range r.Reflog(name) {
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s %s@{%d}: %s\n", e.New.Short(), repo.ShortRefName(name), i, e.Message)
				i++
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&drop, "drop", -1, "remove entry N (0 is the newest)")
	cmd.Flags().BoolVar(&rewrite, "rewrite", false, "with --drop, patch the next entry's old id")
	cmd.Flags().BoolVar(&del, "delete", false, "delete the whole log")
	return cmd
}
