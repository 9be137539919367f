// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Command rsprobe loads a replica set configuration and reports which member
// a link would read from or write to.
package main

import (
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:   "rsprobe",
		Usage:  "report read and write targets of a replica set",
		Writer: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "load the replica set configuration from `FILE` (.yaml, .yml or .toml)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "load RSLINK_LOG_* variables from `FILE` before starting",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print results as JSON",
			},
		},
		Before: func(c *cli.Context) error {
			if path := c.String("env-file"); path != "" {
				return godotenv.Load(path)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "read",
				Usage:  "select a secondary to read from",
				Action: withSession(readTarget),
			},
			{
				Name:   "write",
				Usage:  "select the primary, reconnecting if needed",
				Action: withSession(writeTarget),
			},
			{
				Name:   "reconnect",
				Usage:  "attempt a connection to every member",
				Action: withSession(reconnect),
			},
			{
				Name:   "status",
				Usage:  "refresh the topology and print every member's role and pool state",
				Action: withSession(status),
			},
		},
	}
}
