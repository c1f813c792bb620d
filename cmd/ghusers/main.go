// cmd/ghusers/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"ghusers/client"
	"ghusers/internal/app"
	"ghusers/internal/config"
	"ghusers/internal/document"
	"ghusers/internal/txn"
	"ghusers/internal/users"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// userAPI is the common surface of the in-process service and the HTTP
// client.
type userAPI interface {
	ListUsers(ctx context.Context, filter string) (document.Document, error)
	InsertUser(ctx context.Context, username, status string) (document.User, error)
	EditUser(ctx context.Context, id int, username, status string) error
	DeleteUser(ctx context.Context, id int) error
}

// direct runs operations against the store in this process.
type direct struct {
	*users.Service
}

func (d direct) ListUsers(ctx context.Context, filter string) (document.Document, error) {
	found, err := d.FindUsers(ctx, filter)
	if err != nil {
		return document.Document{}, err
	}
	return document.Document{Users: found}, nil
}

type cli struct {
	configPath string
	serverURL  string
	verbose    bool

	out    io.Writer
	errOut io.Writer
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{logger: zap.NewNop()}

	rootCmd := &cobra.Command{
		Use:   "ghusers",
		Short: "Manage a users document kept in a versioned store",
		Long: `ghusers keeps a JSON users document in a GitHub repository (or a local
versioned store) and changes it through short-lived branches that are merged
back, retrying when another writer got there first.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c.out = cmd.OutOrStdout()
			c.errOut = cmd.ErrOrStderr()
			if !c.verbose {
				return nil
			}

			// Initialize logger
			var err error
			c.logger, err = zap.NewDevelopment()
			if err != nil {
				return fmt.Errorf("initializing logger: %w", err)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", config.ConfigPath(), "Path to the JSON config file")
	rootCmd.PersistentFlags().StringVarP(&c.serverURL, "server", "s", "", "Go through a running ghusers server at this URL")
	rootCmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Print transaction progress and debug logs")

	rootCmd.AddCommand(c.initCmd())
	rootCmd.AddCommand(c.listCmd())
	rootCmd.AddCommand(c.addCmd())
	rootCmd.AddCommand(c.editCmd())
	rootCmd.AddCommand(c.deleteCmd())
	rootCmd.AddCommand(c.logCmd())

	return rootCmd
}

func (c *cli) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

func (c *cli) openApp(ctx context.Context) (*app.App, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	var onProgress func(txn.Progress)
	if c.verbose {
		onProgress = func(p txn.Progress) {
			printProgress(c.errOut, p.Attempt, string(p.Phase), p.Branch, string(p.Outcome), p.Delay.Milliseconds(), p.Err)
		}
	}

	a, err := app.Open(ctx, cfg, c.logger, onProgress)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return a, nil
}

// withUsers runs fn against the server when --server is set and against
// the configured store otherwise.
func (c *cli) withUsers(ctx context.Context, fn func(api userAPI) error) error {
	if c.serverURL == "" {
		a, err := c.openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(direct{a.Users})
	}

	cl := client.New(c.serverURL)
	if !c.verbose {
		return fn(cl)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		err := cl.Watch(watchCtx, func(ev client.Event) {
			var evErr error
			if ev.Error != "" {
				evErr = errors.New(ev.Error)
			}
			printProgress(c.errOut, ev.Attempt, ev.Phase, ev.Branch, ev.Outcome, ev.DelayMillis, evErr)
		})
		if err != nil {
			c.logger.Debug("progress stream unavailable", zap.Error(err))
		}
	}()
	defer func() {
		cancel()
		<-done
	}()

	return fn(cl)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}
