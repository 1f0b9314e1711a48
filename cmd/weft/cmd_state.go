package main

import (
	"fmt"

	"github.com/odvcencio/weft/pkg/object"
	"github.com/odvcencio/weft/pkg/repo"
	"github.com/spf13/cobra"
)

func newStateCmd(g *globalFlags) *cobra.Command {
	var cleanup bool

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Print the operation in progress, if any",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, r, err := g.openRepo(cmd)
			if err != nil {
				return err
			}
			if cleanup {
				return r.StateCleanup()
			}
			fmt.Fprintln(cmd.OutOrStdout(), r.State())
			return nil
		},
	}
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "forget the operation in progress without touching files")
	return cmd
}

func newVerifyCmd(g *globalFlags) *cobra.Command {
	var checkSignatures bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check object storage and reachability from every reference",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, r, err := g.openRepo(cmd)
			if err != nil {
				return err
			}
			rep, err := r.Verify()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "loose objects: %d\n", rep.Objects.LooseObjects)
			fmt.Fprintf(out, "packs: %d (%d objects)\n", rep.Objects.PackFiles, rep.Objects.PackObjects)
			fmt.Fprintf(out, "roots: %d, reachable: %d\n", rep.Roots, rep.Reachable)
			for _, h := range rep.Missing {
				fmt.Fprintf(out, "missing %s\n", h.Hex())
			}
			if !rep.OK() {
				return fmt.Errorf("verify: %d missing objects: %w", len(rep.Missing), repo.ErrNotFound)
			}
			if checkSignatures {
				return verifyHeadSignature(cmd, r)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&checkSignatures, "signatures", false, "also check the SSH signature of HEAD's commit")
	return cmd
}

func verifyHeadSignature(cmd *cobra.Command, r *repo.Repo) error {
	h, err := r.HeadHash()
	if err != nil {
		return err
	}
	c, err := r.Store.ReadCommit(h)
	if err != nil {
		return err
	}
	if c.Signature == "" {
		return fmt.Errorf("verify: %s is not signed", h.Short())
	}
	pub, err := verifySSHSignature(c.Signature, object.CommitSigningPayload(c))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "good %s signature on %s\n", pub.Type(), h.Short())
	return nil
}
