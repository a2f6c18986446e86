// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"

	"github.com/jllopis/skycast/pkg/server"
)

func runServe(ctx context.Context, a *app, args []string) error {
	cmd := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := cmd.String("addr", a.cfg.Server.Addr, "Listen address")
	if err := cmd.Parse(args); err != nil {
		return NewInvalidArgumentError("serve", err.Error())
	}

	srv := server.New(a.orchestrator,
		server.WithAllowedOrigins(a.cfg.Server.AllowedOrigins...),
		server.WithDefaultSession(a.cfg.Session.ID),
		server.WithRequestTimeout(a.cfg.Server.RequestTimeout),
		server.WithLogger(a.logger),
	)
	return srv.ListenAndServe(ctx, *addr)
}
