package main

import (
	"fmt"
	"strings"

	"github.com/odvcencio/weft/pkg/repo"
	"github.com/spf13/cobra"
)

func newCommitCmd(g *globalFlags) *cobra.Command {
	var message, keyPath string
	var sign, noSign bool

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Record the index as a new commit on HEAD",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, r, err := g.openRepo(cmd)
			if err != nil {
				return err
			}
			if strings.TrimSpace(message) == "" {
				if message, err = r.MergeMessage(); err != nil {
					return err
				}
			}
			if strings.TrimSpace(message) == "" {
				return fmt.Errorf("commit: empty message; pass -m")
			}

			signer, err := s.commitSigner(sign, noSign, keyPath)
			if err != nil {
				return err
			}
			h, err := r.CreateCommitOnHeadWithSigner(message, nil, nil, signer)
			if err != nil {
				return err
			}

			where := "detached HEAD"
			if branch, err := r.CurrentBranch(); err == nil && branch != "" {
				where = branch
			}
			c, err := r.Store.ReadCommit(h)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s %s] %s\n", where, h.Short(), c.Summary())
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	cmd.Flags().BoolVarP(&sign, "sign", "S", false, "sign the commit with an SSH key")
	cmd.Flags().BoolVar(&noSign, "no-sign", false, "do not sign, even if [signing] enabled is set")
	cmd.Flags().StringVar(&keyPath, "signing-key", "", "SSH private key (default: [signing] key, then ~/.ssh/id_*)")
	cmd.MarkFlagsMutuallyExclusive("sign", "no-sign")
	return cmd
}

// commitSigner decides whether to sign from the flags and [signing], and
// loads the key when it does. A nil signer means unsigned.
func (s *session) commitSigner(sign, noSign bool, keyPath string) (repo.CommitSigner, error) {
	if noSign || !(sign || s.cfg.Signing.Enabled) {
		return nil, nil
	}
	if keyPath == "" {
		keyPath = s.cfg.Signing.Key
	}
	signer, resolved, err := newSSHCommitSigner(keyPath)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("signing commit", "key", resolved)
	return signer, nil
}
