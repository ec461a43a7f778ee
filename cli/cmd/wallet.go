package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v2"

	"github.com/pithecus-labs/creditrunner/cli/tui"
	"github.com/pithecus-labs/creditrunner/wallet"
)

// WalletCommand returns the "wallet" command with its "show" and "watch"
// subcommands.
func WalletCommand() *cli.Command {
	return &cli.Command{
		Name:  "wallet",
		Usage: "Inspect Credential Wallet state",
		Subcommands: []*cli.Command{
			walletShowCommand(),
			walletWatchCommand(),
		},
	}
}

func credentialsFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "credentials",
		Usage:    "JSON file of tokens (array of strings or object)",
		Required: true,
	}
}

func walletShowCommand() *cli.Command {
	return &cli.Command{
		Name:  "show",
		Usage: "Print a one-shot wallet snapshot",
		Flags: []cli.Flag{
			credentialsFlag(),
			&cli.BoolFlag{Name: "tui", Usage: "Render with the Bubble Tea stat boxes instead of plain JSON"},
		},
		Action: walletShowAction,
	}
}

func walletShowAction(c *cli.Context) error {
	w, err := openWalletReadOnly(c.String("credentials"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return cli.Exit("", exitError)
	}

	snap := w.Snapshot()
	if c.Bool("tui") {
		fmt.Println(tui.RenderWalletSnapshot(snap))
		return nil
	}

	data, err := json.Marshal(snap)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return cli.Exit("", exitError)
	}
	fmt.Println(string(data))
	return nil
}

func walletWatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Live-poll wallet state until interrupted",
		Flags: []cli.Flag{
			credentialsFlag(),
			&cli.DurationFlag{Name: "interval", Value: time.Second, Usage: "Poll cadence"},
		},
		Action: walletWatchAction,
	}
}

func walletWatchAction(c *cli.Context) error {
	w, err := openWalletReadOnly(c.String("credentials"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return cli.Exit("", exitError)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := tui.RunWalletWatchTUI(ctx, w, c.Duration("interval")); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return cli.Exit("", exitError)
	}
	return nil
}

// openWalletReadOnly loads the wallet the same way "run" does (persisted
// state in a sibling .wallet file, seeded from credentialsPath), purely to
// inspect it. When no .wallet file exists yet, credentials are seeded in
// memory only, with a zero limit, and nothing is written to disk.
func openWalletReadOnly(credentialsPath string) (*wallet.Wallet, error) {
	persistedPath := credentialsPath + ".wallet"
	if _, err := os.Stat(persistedPath); err != nil {
		persistedPath = ""
	}
	return wallet.Load(persistedPath, credentialsPath, 0)
}
