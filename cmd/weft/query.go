// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Weft Contributors

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	werr "github.com/weft-dev/weft/pkg/errors"
	"github.com/weft-dev/weft/pkg/model"
	"github.com/weft-dev/weft/pkg/proto"
)

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query the activity graph",
	}
	cmd.AddCommand(
		newSearchCmd(),
		newRecentCmd(),
		newTimelineCmd(),
		newRelatedCmd(),
		newSessionsCmd(),
	)
	return cmd
}

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Full-text search over entity names",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return runQuery(cmd, &proto.QueryRequest{
				Kind:  proto.QuerySearch,
				Text:  args[0],
				Limit: limit,
			})
		},
	}
	cmd.Flags().Int("limit", 20, "maximum results")
	return cmd
}

func newRecentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show the most recent events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return runQuery(cmd, &proto.QueryRequest{
				Kind:  proto.QueryRecent,
				Limit: limit,
			})
		},
	}
	cmd.Flags().Int("limit", 20, "maximum results")
	return cmd
}

func newTimelineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Show events in a time range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			since, _ := cmd.Flags().GetDuration("since")
			now := model.Now()
			return runQuery(cmd, &proto.QueryRequest{
				Kind: proto.QueryTimeline,
				From: now - since.Milliseconds(),
				To:   now,
			})
		},
	}
	cmd.Flags().Duration("since", 24*time.Hour, "how far back to look")
	return cmd
}

func newRelatedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "related <entity-id>",
		Short: "Show entities related to the given entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			depth, _ := cmd.Flags().GetInt("depth")
			if depth <= 0 {
				return werr.New(werr.CodeCLIInputInvalid, "depth must be positive")
			}
			return runQuery(cmd, &proto.QueryRequest{
				Kind:     proto.QueryRelated,
				EntityID: model.EntityID(args[0]),
				Depth:    depth,
			})
		},
	}
	cmd.Flags().Int("depth", 2, "traversal depth in hops")
	return cmd
}

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Show aggregated activity sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			since, _ := cmd.Flags().GetDuration("since")
			limit, _ := cmd.Flags().GetInt("limit")
			now := model.Now()
			return runQuery(cmd, &proto.QueryRequest{
				Kind:  proto.QuerySessions,
				From:  now - since.Milliseconds(),
				To:    now,
				Limit: limit,
			})
		},
	}
	cmd.Flags().Duration("since", 24*time.Hour, "how far back to look")
	cmd.Flags().Int("limit", 50, "maximum results")
	return cmd
}

func runQuery(cmd *cobra.Command, q *proto.QueryRequest) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	req := newRequest(proto.TypeQuery)
	req.Query = q
	resp, err := newDaemonClient(cfg.Daemon.SocketPath).request(req)
	if err != nil {
		return err
	}
	if resp.Result == nil {
		return werr.New(werr.CodeCLIResponseInvalid, "query response missing payload")
	}

	printResult(cmd, resp.Result)
	return nil
}

func printResult(cmd *cobra.Command, r *proto.QueryResult) {
	out := cmd.OutOrStdout()

	for _, e := range r.Entities {
		_, _ = fmt.Fprintf(out, "%s  %-12s %s\n", e.ID, e.Kind, e.Name)
	}
	for _, ev := range r.Events {
		_, _ = fmt.Fprintf(out, "%s  %-18s %s:%s\n",
			formatTS(ev.Timestamp), ev.Kind, ev.Subject.Kind, ev.Subject.Identity)
	}
	for _, s := range r.Sessions {
		_, _ = fmt.Fprintf(out, "%s  %-14s %-20s %4ds  %d events  [%s]\n",
			formatTS(s.StartTime), s.Category, s.AppName, s.DurationSecs,
			s.EventCount, strings.Join(s.WindowTitles, ", "))
	}
	if len(r.Entities)+len(r.Events)+len(r.Sessions) == 0 {
		_, _ = fmt.Fprintln(out, "no results")
	}
}

func formatTS(ts model.Timestamp) string {
	return time.UnixMilli(ts).Format("2006-01-02 15:04:05")
}
