package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/dustin/go-humanize"

	"github.com/dotsetgreg/rumi/pkg/memory"
)

var errShellExit = errors.New("exit")

const shellHelp = `Commands:
  status <guild> <channel>            Channel memory status
  context <guild> <channel> [days]    Summarized conversation context
  profile <user> [guild]              User stats and stored profile
  users [guild] [limit]               Recently seen users
  tables                              Core and partition tables
  cleanup                             Run a retention sweep now
  help                                Show this help
  exit                                Leave the shell`

func runShell(ctx context.Context, out io.Writer, store memory.Store, policy memory.RetentionPolicy) error {
	fmt.Fprintf(out, "%s memory shell (type help, Ctrl+C to exit)\n\n", appName)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          appName + "> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".rumi_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          out,
	})
	if err != nil {
		fmt.Fprintf(out, "Error initializing readline: %v\n", err)
		fmt.Fprintln(out, "Falling back to simple input mode...")
		return simpleShell(ctx, os.Stdin, out, store, policy)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Fprintln(out, "\nGoodbye!")
				return nil
			}
			fmt.Fprintf(out, "Error reading input: %v\n", err)
			continue
		}
		if runShellLine(ctx, out, store, policy, line) == errShellExit {
			fmt.Fprintln(out, "Goodbye!")
			return nil
		}
	}
}

func simpleShell(ctx context.Context, in io.Reader, out io.Writer, store memory.Store, policy memory.RetentionPolicy) error {
	reader := bufio.NewReader(in)
	for {
		fmt.Fprint(out, appName+"> ")
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			if err == io.EOF {
				fmt.Fprintln(out, "\nGoodbye!")
				return nil
			}
			return err
		}
		if runShellLine(ctx, out, store, policy, line) == errShellExit {
			fmt.Fprintln(out, "Goodbye!")
			return nil
		}
	}
}

// runShellLine executes one shell command. Command errors are printed and
// swallowed; only errShellExit is returned.
func runShellLine(ctx context.Context, out io.Writer, store memory.Store, policy memory.RetentionPolicy, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	var err error
	switch cmd {
	case "exit", "quit":
		return errShellExit
	case "help", "?":
		fmt.Fprintln(out, shellHelp)
	case "status":
		if len(args) < 2 {
			err = fmt.Errorf("usage: status <guild> <channel>")
			break
		}
		err = printChannelStatus(ctx, out, store, args[0], args[1])
	case "context":
		if len(args) < 2 {
			err = fmt.Errorf("usage: context <guild> <channel> [days]")
			break
		}
		days := 7
		if len(args) > 2 {
			if days, err = strconv.Atoi(args[2]); err != nil {
				err = fmt.Errorf("days must be a number: %q", args[2])
				break
			}
		}
		err = runContext(ctx, out, store, args[0], args[1], days)
	case "profile":
		if len(args) < 1 {
			err = fmt.Errorf("usage: profile <user> [guild]")
			break
		}
		guildID := ""
		if len(args) > 1 {
			guildID = args[1]
		}
		err = runProfile(ctx, out, store, args[0], guildID)
	case "users":
		guildID, limit := "", 20
		if len(args) > 0 {
			guildID = args[0]
		}
		if len(args) > 1 {
			if limit, err = strconv.Atoi(args[1]); err != nil {
				err = fmt.Errorf("limit must be a number: %q", args[1])
				break
			}
		}
		err = runUsers(ctx, out, store, guildID, limit)
	case "tables":
		err = runTables(ctx, out, store)
	case "cleanup":
		err = runCleanup(ctx, out, store, policy)
	default:
		err = fmt.Errorf("unknown command %q (type help)", cmd)
	}

	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
	}
	return nil
}

func printChannelStatus(ctx context.Context, out io.Writer, store memory.Store, guildID, channelID string) error {
	st, err := store.GetChannelStatus(ctx, guildID, channelID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Channel %s/%s\n", guildID, channelID)
	fmt.Fprintf(out, "  Messages (24h):  %d (%s words)\n", st.RecentMessages, humanize.Comma(int64(st.ContextWordCount)))
	fmt.Fprintf(out, "  Summaries:       %d\n", st.Summaries)
	if !st.LastSummaryAt.IsZero() {
		fmt.Fprintf(out, "  Last summary:    %s\n", humanize.Time(st.LastSummaryAt))
	}
	return nil
}
