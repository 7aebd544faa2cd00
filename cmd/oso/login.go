package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/osobot/oso/internal/config"
	"github.com/osobot/oso/internal/reddit"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newLoginCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Verify Reddit credentials",
		Long:  "Runs the OAuth2 password grant against Reddit and reports which account it reaches. Prompts for the password if the config and environment leave it empty.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")
	return cmd
}

func runLogin(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Reddit.Password == "" {
		fmt.Fprintf(out, "Password for /u/%s: ", cfg.Reddit.Username)
		pw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		cfg.Reddit.Password = strings.TrimSpace(string(pw))
	}

	rc, err := reddit.New(cmd.Context(), reddit.Opts{
		ClientID:     cfg.Reddit.ClientID,
		ClientSecret: cfg.Reddit.ClientSecret,
		Username:     cfg.Reddit.Username,
		Password:     cfg.Reddit.Password,
		UserAgent:    cfg.Reddit.UserAgent,
		Subreddit:    cfg.Reddit.Subreddit,
	})
	if err != nil {
		return err
	}

	me, err := rc.Me(cmd.Context())
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	fmt.Fprintf(out, "Logged in as /u/%s\n", me)
	return nil
}
