// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Weft Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	werr "github.com/weft-dev/weft/pkg/errors"
	"github.com/weft-dev/weft/pkg/proto"
)

func newPauseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pause",
		Short: "Pause event tracking",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return setTrackingPaused(cmd, true)
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "resume",
		Short: "Resume event tracking",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return setTrackingPaused(cmd, false)
		},
	})
	return cmd
}

func setTrackingPaused(cmd *cobra.Command, paused bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	req := newRequest(proto.TypeSetTrackingPaused)
	req.Paused = &paused
	resp, err := newDaemonClient(cfg.Daemon.SocketPath).request(req)
	if err != nil {
		return err
	}
	if resp.Type != proto.TypeTrackingStatus || resp.Paused == nil {
		return werr.New(werr.CodeCLIResponseInvalid, "unexpected tracking response")
	}

	state := "active"
	if *resp.Paused {
		state = "paused"
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "tracking is now %s\n", state)
	return nil
}
