package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dotsetgreg/rumi/pkg/config"
	"github.com/dotsetgreg/rumi/pkg/memory"
)

const shortTime = "2006-01-02 15:04"

func runCleanup(ctx context.Context, out io.Writer, store memory.Store, policy memory.RetentionPolicy) error {
	report, err := store.Cleanup(ctx, policy)
	fmt.Fprintf(out, "Retention sweep at %s\n", report.RunAt.Format(shortTime))
	fmt.Fprintf(out, "  Raw cutoff:      %s (%d days)\n", report.RawCutoff.Format(shortTime), policy.RawDays)
	fmt.Fprintf(out, "  Summary cutoff:  %s (%d days)\n", report.SummaryCutoff.Format(shortTime), policy.SummaryDays)
	fmt.Fprintf(out, "  Messages:        %s deleted\n", humanize.Comma(report.MessagesDeleted))
	fmt.Fprintf(out, "  Partition rows:  %s deleted across %d tables\n", humanize.Comma(report.PartitionRowsDeleted), report.PartitionsSwept)
	fmt.Fprintf(out, "  Summaries:       %s deleted\n", humanize.Comma(report.SummariesDeleted))
	if len(report.FailedTables) > 0 {
		fmt.Fprintf(out, "  Failed tables:   %s\n", strings.Join(report.FailedTables, ", "))
	}
	return err
}

type statusInput struct {
	configPath string
	cfg        *config.Config
	store      memory.Store
	dbPath     string
	guildID    string
	channelID  string
}

func runStatus(ctx context.Context, out io.Writer, in statusInput) error {
	fmt.Fprintf(out, "%s Status\n", appName)
	fmt.Fprintf(out, "Version: %s\n\n", formatVersion())

	mark := func(ok bool) string {
		if ok {
			return "✓"
		}
		return "not set"
	}

	if _, err := os.Stat(in.configPath); err == nil {
		fmt.Fprintln(out, "Config:", in.configPath, "✓")
	} else {
		fmt.Fprintln(out, "Config:", in.configPath, "(defaults)")
	}

	dbPath := in.dbPath
	if dbPath == "" {
		dbPath = in.cfg.StoragePath()
	}
	if info, err := os.Stat(dbPath); err == nil {
		fmt.Fprintf(out, "Memory DB: %s (%s)\n", dbPath, humanize.Bytes(uint64(info.Size())))
	} else {
		fmt.Fprintln(out, "Memory DB:", dbPath, "not initialized")
	}

	tables, err := in.store.ListTables(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Tables: %d core, %d user partitions\n", len(tables.Core), len(tables.Partitions))
	fmt.Fprintf(out, "Retention: %d days raw, %d days summaries, schedule %q\n",
		in.cfg.Retention.RawDays, in.cfg.Retention.SummaryDays, in.cfg.Retention.Schedule)
	fmt.Fprintf(out, "Model: %s (%s)\n", in.cfg.AI.Model, in.cfg.GetBaseURL())
	fmt.Fprintln(out, "AI API key:", mark(strings.TrimSpace(in.cfg.GetAPIKey()) != ""))
	fmt.Fprintln(out, "Discord token:", mark(strings.TrimSpace(in.cfg.Discord.Token) != ""))

	if in.guildID == "" || in.channelID == "" {
		return nil
	}
	fmt.Fprintln(out)
	return printChannelStatus(ctx, out, in.store, in.guildID, in.channelID)
}

func runContext(ctx context.Context, out io.Writer, store memory.Store, guildID, channelID string, days int) error {
	text, err := store.GetConversationContext(ctx, guildID, channelID, days)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, text)
	return nil
}

func runProfile(ctx context.Context, out io.Writer, store memory.Store, userID, guildID string) error {
	stats, err := store.GetUserStats(ctx, userID, guildID)
	if err != nil {
		return err
	}
	if !stats.Known {
		fmt.Fprintf(out, "No data for user %s.\n", userID)
		return nil
	}

	fmt.Fprintf(out, "%s (@%s) %s\n", stats.DisplayName, stats.Username, stats.UserID)
	fmt.Fprintf(out, "  Messages:    %s total\n", humanize.Comma(int64(stats.TotalMessages)))
	fmt.Fprintf(out, "  First seen:  %s\n", stats.FirstSeen.Format(shortTime))
	fmt.Fprintf(out, "  Last seen:   %s\n", stats.LastSeen.Format(shortTime))
	if stats.HasPartition {
		fmt.Fprintf(out, "  Partition:   %s\n", stats.PartitionTable)
	}
	if guildID != "" && stats.GuildMessageCount > 0 {
		fmt.Fprintf(out, "  Guild %s: %d messages, %.1f words avg, %s to %s\n", guildID,
			stats.GuildMessageCount, stats.AvgWordCount,
			stats.FirstMessage.Format(shortTime), stats.LastMessage.Format(shortTime))
	}

	if guildID == "" {
		return nil
	}
	profile, err := store.GetProfile(ctx, userID, guildID)
	if err != nil {
		return err
	}
	if profile == nil || !profile.Analyzed {
		fmt.Fprintln(out, "  Profile:     not analyzed")
		return nil
	}
	fmt.Fprintf(out, "  Analyzed:    %s\n", profile.AnalysisDate.Format(shortTime))
	fmt.Fprintf(out, "  Style:       %s\n", profile.InteractionStyle)
	fmt.Fprintf(out, "  Topics:      %s\n", strings.Join(profile.CommonTopics, ", "))
	fmt.Fprintf(out, "  Notes:       %s\n", profile.PersonalityNotes)
	return nil
}

func runUsers(ctx context.Context, out io.Writer, store memory.Store, guildID string, limit int) error {
	users, err := store.ListUsers(ctx, guildID, limit)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Fprintln(out, "No users found.")
		return nil
	}
	now := time.Now()
	for _, u := range users {
		count := fmt.Sprintf("%d total", u.TotalMessages)
		if guildID != "" {
			count = fmt.Sprintf("%d in guild", u.GuildMessages)
		}
		fmt.Fprintf(out, "%-20s @%-16s %-14s last seen %s\n", u.DisplayName, u.Username, count,
			humanize.RelTime(u.LastSeen, now, "ago", "from now"))
	}
	return nil
}

func runTables(ctx context.Context, out io.Writer, store memory.Store) error {
	listing, err := store.ListTables(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Core tables (%d):\n", len(listing.Core))
	for _, t := range listing.Core {
		fmt.Fprintf(out, "  %s\n", t)
	}
	fmt.Fprintf(out, "User message tables (%d):\n", len(listing.Partitions))
	for _, t := range listing.Partitions {
		fmt.Fprintf(out, "  %s\n", t)
	}
	return nil
}
