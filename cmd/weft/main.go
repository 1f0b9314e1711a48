package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/odvcencio/weft/pkg/repo"
	"github.com/spf13/cobra"
)

const version = "0.1.0-dev"

// globalFlags holds the persistent flags shared by every subcommand.
type globalFlags struct {
	repoPath   string
	logLevel   string
	configPath string
}

// session is what a command needs after flag parsing: the tool config
// and a logger built from it.
type session struct {
	flags  *globalFlags
	cfg    *toolConfig
	logger *slog.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "weft",
		Short:         "Content-addressed version control",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.repoPath, "repo", "C", ".", "path inside the repository")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn or error")
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "tool config file (default: $XDG_CONFIG_HOME/weft/config.toml)")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd(g))
	root.AddCommand(newHashObjectCmd(g))
	root.AddCommand(newCatFileCmd(g))
	root.AddCommand(newUpdateRefCmd(g))
	root.AddCommand(newSymbolicRefCmd(g))
	root.AddCommand(newShowRefCmd(g))
	root.AddCommand(newReflogCmd(g))
	root.AddCommand(newLogCmd(g))
	root.AddCommand(newMergeBaseCmd(g))
	root.AddCommand(newBranchCmd(g))
	root.AddCommand(newTagCmd(g))
	root.AddCommand(newAddCmd(g))
	root.AddCommand(newRmCmd(g))
	root.AddCommand(newStageLinesCmd(g))
	root.AddCommand(newCommitCmd(g))
	root.AddCommand(newStatusCmd(g))
	root.AddCommand(newDiffCmd(g))
	root.AddCommand(newMergeCmd(g))
	root.AddCommand(newCherryPickCmd(g))
	root.AddCommand(newRevertCmd(g))
	root.AddCommand(newRebaseCmd(g))
	root.AddCommand(newCheckoutCmd(g))
	root.AddCommand(newResetCmd(g))
	root.AddCommand(newStateCmd(g))
	root.AddCommand(newVerifyCmd(g))
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "weft %s\n", version)
		},
	}
}

// start loads the tool config and sets up logging on the command's stderr.
// The --log-level flag wins over [log] level.
func (g *globalFlags) start(cmd *cobra.Command) (*session, error) {
	cfg, err := loadToolConfig(g.configPath)
	if err != nil {
		return nil, err
	}
	levelName := cfg.Log.Level
	if g.logLevel != "" {
		levelName = g.logLevel
	}
	level, err := parseLogLevel(levelName)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return &session{flags: g, cfg: cfg, logger: logger}, nil
}

// open finds the repository containing --repo. An identity from the tool
// config fills in for a repository without user.name or user.email; it is
// not written back.
func (s *session) open() (*repo.Repo, error) {
	r, err := repo.PlainOpen(s.flags.repoPath, repo.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	c := r.Config()
	if c.UserName() == "" && s.cfg.User.Name != "" {
		c.Set("user", "name", s.cfg.User.Name)
	}
	if c.UserEmail() == "" && s.cfg.User.Email != "" {
		c.Set("user", "email", s.cfg.User.Email)
	}
	return r, nil
}

// openRepo is start followed by open, for commands that need nothing else.
func (g *globalFlags) openRepo(cmd *cobra.Command) (*session, *repo.Repo, error) {
	s, err := g.start(cmd)
	if err != nil {
		return nil, nil, err
	}
	r, err := s.open()
	if err != nil {
		return nil, nil, err
	}
	return s, r, nil
}
