package main

import (
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"ghusers/internal/document"
	"ghusers/internal/errors"
	"ghusers/internal/vcs/local"

	"github.com/fatih/color"
)

func printUsers(w io.Writer, users []document.User) {
	if len(users) == 0 {
		fmt.Fprintln(w, "No users")
		return
	}

	header := color.New(color.FgCyan, color.Bold).SprintFunc()
	active := color.New(color.FgGreen).SprintFunc()
	other := color.New(color.FgYellow).SprintFunc()

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\n", header("ID"), header("USERNAME"), header("STATUS"))
	for _, u := range users {
		status := other(u.Status)
		if strings.EqualFold(u.Status, "active") {
			status = active(u.Status)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", u.ID, u.Username, status)
	}
	tw.Flush()
}

func printDone(w io.Writer, format string, args ...any) {
	color.New(color.FgGreen).Fprintf(w, format+"\n", args...)
}

func printProgress(w io.Writer, attempt int, phase, branch, outcome string, delayMillis int64, err error) {
	dim := color.New(color.FgHiBlack).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	blue := color.New(color.FgBlue).SprintFunc()

	line := fmt.Sprintf("%s %s", dim(fmt.Sprintf("[attempt %d]", attempt)), blue(phase))
	if branch != "" {
		line += " " + dim(branch)
	}
	if outcome != "" {
		line += " " + outcome
	}
	if delayMillis > 0 {
		line += " " + yellow(fmt.Sprintf("%dms", delayMillis))
	}
	if err != nil {
		line += " " + red(err.Error())
	}
	fmt.Fprintln(w, line)
}

func printCommit(w io.Writer, c *local.Commit) {
	yellow := color.New(color.FgYellow).SprintFunc()
	dim := color.New(color.FgHiBlack).SprintFunc()

	fmt.Fprintf(w, "%s %s %s\n", yellow(short(c.ID)), c.Message, dim(c.CreatedAt.Format("2006-01-02 15:04:05")))
}

func printColoredDiff(w io.Writer, diff string) {
	// Create color objects
	added := color.New(color.FgGreen)
	removed := color.New(color.FgRed)
	changed := color.New(color.FgCyan)

	// Process diff line by line
	for _, line := range strings.Split(strings.TrimSuffix(diff, "\n"), "\n") {
		if len(line) == 0 {
			continue
		}

		switch {
		case strings.HasPrefix(line, "+"):
			added.Fprintln(w, "    "+line)
		case strings.HasPrefix(line, "-"):
			removed.Fprintln(w, "    "+line)
		case strings.HasPrefix(line, "~"):
			changed.Fprintln(w, "    "+line)
		default:
			fmt.Fprintln(w, "    "+line)
		}
	}
}

func printError(w io.Writer, err error) {
	red := color.New(color.FgRed).SprintFunc()

	var typed *errors.Error
	if !stderrors.As(err, &typed) {
		fmt.Fprintln(w, red("error:"), err)
		return
	}

	fmt.Fprintf(w, "%s %s (%s)\n", red("error:"), err, typed.Type)
	if typed.Type == errors.ErrorTypeExhausted {
		fmt.Fprintln(w, "  the document kept changing underneath; try again later")
	}
	if typed.Cleanup != nil {
		fmt.Fprintf(w, "  %s %v\n", red("branches left behind:"), typed.Cleanup)
	}
}
