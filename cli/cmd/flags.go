// Package cmd provides the creditrunner CLI commands.
package cmd

import "github.com/urfave/cli/v2"

// runFlags are the CLI surface for the "run" command. Every flag is
// optional; the Config Loader falls back to an env-carried JSON blob, an
// optional --config YAML file, and hard-coded defaults in that order.
func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "Path to a YAML defaults file (lowest-precedence config layer)",
		},
		&cli.StringFlag{
			Name:  "input",
			Usage: "Input CSV path",
		},
		&cli.StringFlag{
			Name:  "output",
			Usage: "Output CSV path",
		},
		&cli.StringFlag{
			Name:  "credentials",
			Usage: "JSON file of tokens (array of strings or object)",
		},
		&cli.IntFlag{
			Name:  "per-credential-limit",
			Usage: "Initial credit quota per token",
		},
		&cli.IntFlag{
			Name:  "max-concurrent",
			Usage: "Global in-flight request cap",
		},
		&cli.Float64Flag{
			Name:  "max-rps",
			Usage: "Token-bucket rate, requests per second",
		},
		&cli.IntFlag{
			Name:  "retry-max",
			Usage: "Transient retry attempts",
		},
		&cli.IntFlag{
			Name:  "batch-size",
			Usage: "Items per request where the driver batches",
		},
		&cli.StringFlag{
			Name:  "tool",
			Usage: "Tool Registry entry to run",
		},
		&cli.StringFlag{
			Name:  "stop-flag-path",
			Usage: "File whose presence begins cancellation",
		},
		&cli.StringSliceFlag{
			Name:  "column-map",
			Usage: "Logical field to input column, as field=Column (repeatable)",
		},
		&cli.StringFlag{
			Name:  "endpoint",
			Usage: "Actor Driver HTTP endpoint",
		},
		&cli.StringFlag{
			Name:  "archival",
			Usage: "s3://bucket/prefix to upload run artifacts to on completion",
		},
		&cli.StringFlag{
			Name:  "adapter-kind",
			Usage: "Completion adapter: webhook or redis",
		},
		&cli.StringFlag{
			Name:  "adapter-url",
			Usage: "Completion adapter endpoint URL",
		},
		&cli.StringFlag{
			Name:  "metrics-addr",
			Usage: "HTTP listen address for Prometheus metrics (empty disables)",
		},
		&cli.StringFlag{
			Name:  "resume-cache-path",
			Usage: "Resume cache sidecar path (default: <input>.rcache)",
		},
	}
}
