// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Weft Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	werr "github.com/weft-dev/weft/pkg/errors"
	"github.com/weft-dev/weft/pkg/proto"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Long:  "Query the running daemon for aggregate counts and uptime.",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	resp, err := newDaemonClient(cfg.Daemon.SocketPath).request(newRequest(proto.TypeStatus))
	if err != nil {
		if werr.HasCode(err, werr.CodeCLIDaemonNotRunning) {
			_, _ = fmt.Fprintf(out, "Daemon at %s is not running\n", cfg.Daemon.SocketPath)
			return nil
		}
		return err
	}
	if resp.Status == nil {
		return werr.New(werr.CodeCLIResponseInvalid, "status response missing payload")
	}

	st := resp.Status
	tracking := "active"
	if st.TrackingPaused {
		tracking = "paused"
	}
	_, _ = fmt.Fprintf(out, "Daemon at %s\n", cfg.Daemon.SocketPath)
	_, _ = fmt.Fprintf(out, "  uptime:     %ds\n", st.UptimeSecs)
	_, _ = fmt.Fprintf(out, "  entities:   %d\n", st.EntityCount)
	_, _ = fmt.Fprintf(out, "  edges:      %d\n", st.EdgeCount)
	_, _ = fmt.Fprintf(out, "  events:     %d\n", st.EventCount)
	_, _ = fmt.Fprintf(out, "  collectors: %d\n", st.ConnectedCollectors)
	_, _ = fmt.Fprintf(out, "  tracking:   %s\n", tracking)
	return nil
}
