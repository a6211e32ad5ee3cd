// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Weft Contributors

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/weft-dev/weft/pkg/proto"
)

func newCollectorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collectors",
		Short: "List registered collectors",
		Args:  cobra.NoArgs,
		RunE:  runCollectors,
	}
}

func runCollectors(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	resp, err := newDaemonClient(cfg.Daemon.SocketPath).request(newRequest(proto.TypeListCollectors))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(resp.Collectors) == 0 {
		_, _ = fmt.Fprintln(out, "no collectors registered")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tSOURCE\tCONNECTED\tLAST HEARTBEAT\tEVENTS")
	for _, c := range resp.Collectors {
		heartbeat := "-"
		if c.LastHeartbeat != nil {
			heartbeat = formatTS(*c.LastHeartbeat)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%d\n",
			c.Name, c.Source, c.Connected, heartbeat, c.EventsSent)
	}
	return w.Flush()
}
