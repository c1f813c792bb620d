package main

import (
	"context"
	"fmt"
	"strconv"

	"ghusers/internal/config"
	"ghusers/internal/diff"
	"ghusers/internal/document"
	"ghusers/internal/errors"
	"ghusers/internal/vcs/local"

	"github.com/spf13/cobra"
)

func (c *cli) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Prepare the configured store",
		Long: `For the local backend, creates the database and the base ref. For the
github backend, checks that the base ref can be resolved.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			cfg := a.Config
			token, err := a.Store.GetRef(cmd.Context(), cfg.Store.BaseRef)
			if err != nil {
				return err
			}

			if cfg.Store.Backend == config.BackendLocal {
				fmt.Fprintf(c.out, "Initialized local store in %s (%s at %s)\n", cfg.Database.Path, cfg.Store.BaseRef, short(token))
			} else {
				fmt.Fprintf(c.out, "Connected to %s/%s (%s at %s)\n", cfg.Store.Owner, cfg.Store.Repo, cfg.Store.BaseRef, short(token))
			}
			return nil
		},
	}
}

func (c *cli) listCmd() *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		Long:  `Lists the users on the base ref, optionally filtered by an expression such as 'Status == "active" && ID > 2'.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withUsers(cmd.Context(), func(api userAPI) error {
				doc, err := api.ListUsers(cmd.Context(), filter)
				if err != nil {
					return err
				}
				printUsers(c.out, doc.Users)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", "", "Filter expression over ID, Username and Status")
	return cmd
}

func (c *cli) addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <username> <status>",
		Short: "Add a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withUsers(cmd.Context(), func(api userAPI) error {
				u, err := api.InsertUser(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				printDone(c.out, "Added user %d (%s)", u.ID, u.Username)
				return nil
			})
		},
	}
}

func (c *cli) editCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit <id> <username> <status>",
		Short: "Replace a user's username and status",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return c.withUsers(cmd.Context(), func(api userAPI) error {
				if err := api.EditUser(cmd.Context(), id, args[1], args[2]); err != nil {
					return err
				}
				printDone(c.out, "Updated user %d", id)
				return nil
			})
		},
	}
}

func (c *cli) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a user",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return c.withUsers(cmd.Context(), func(api userAPI) error {
				if err := api.DeleteUser(cmd.Context(), id); err != nil {
					return err
				}
				printDone(c.out, "Deleted user %d", id)
				return nil
			})
		},
	}
}

func (c *cli) logCmd() *cobra.Command {
	var limit int
	var patch bool
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the commit history of the base ref (local backend)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if a.Local == nil {
				return errors.ValidationError("log is only available for the local backend", nil)
			}

			commits, err := a.Local.Log(cmd.Context(), a.Config.Store.BaseRef, limit)
			if err != nil {
				return err
			}

			for _, commit := range commits {
				printCommit(c.out, commit)
				if !patch {
					continue
				}
				d, err := commitDiff(cmd.Context(), a.Local, commit, a.Config.Store.Path)
				if err != nil {
					return err
				}
				printColoredDiff(c.out, d.Format())
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of commits to show")
	cmd.Flags().BoolVarP(&patch, "patch", "p", false, "Show the user records each commit changed")
	return cmd
}

// commitDiff compares the document in commit with the one in its first
// parent.
func commitDiff(ctx context.Context, store *local.Store, commit *local.Commit, path string) (*diff.DiffResult, error) {
	after, err := documentAt(ctx, store, commit.ID, path)
	if err != nil {
		return nil, err
	}
	before := document.Document{}
	if commit.Parent != "" {
		if before, err = documentAt(ctx, store, commit.Parent, path); err != nil {
			return nil, err
		}
	}
	return diff.Documents(before, after), nil
}

func documentAt(ctx context.Context, store *local.Store, commitID, path string) (document.Document, error) {
	f, err := store.ReadFileAt(ctx, commitID, path)
	if errors.Is(err, errors.ErrorTypeFileNotFound) {
		return document.Document{}, nil
	}
	if err != nil {
		return document.Document{}, err
	}
	return document.Decode(f.Content)
}

func parseID(raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, errors.ValidationError(fmt.Sprintf("invalid user id: %q", raw), nil)
	}
	return id, nil
}

func short(token string) string {
	if len(token) > 12 {
		return token[:12]
	}
	return token
}
