package main

import (
	"fmt"

	"github.com/odvcencio/weft/pkg/repo"
	"github.com/spf13/cobra"
)

func newInitCmd(g *globalFlags) *cobra.Command {
	var bare bool
	var initialBranch string

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Create an empty repository",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.start(cmd)
			if err != nil {
				return err
			}
			path := g.repoPath
			if len(args) == 1 {
				path = args[0]
			}
			r, err := repo.PlainInit(path, bare, repo.WithLogger(s.logger), repo.WithDefaultBranch(initialBranch))
			if err != nil {
				return err
			}
			head, err := r.Head()
			if err != nil {
				return err
			}
			kind := "repository"
			if bare {
				kind = "bare repository"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized empty %s in %s (HEAD -> %s)\n", kind, path, head.Target)
			return nil
		},
	}
	cmd.Flags().BoolVar(&bare, "bare", false, "create a repository without a working tree")
	cmd.Flags().StringVarP(&initialBranch, "initial-branch", "b", "", "branch HEAD points at (default "+repo.DefaultBranch+")")
	return cmd
}
