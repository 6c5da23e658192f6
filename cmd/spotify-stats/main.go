// Command spotify-stats shows your Spotify listening statistics in the
// terminal and serves them as a JSON API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/justestif/spotify-stats/internal/config"
	"github.com/justestif/spotify-stats/internal/logging"
)

const usage = `Usage: spotify-stats [-config path] <command> [flags]

Commands:
  serve                                  run the HTTP API
  login                                  sign in with Spotify
  logout                                 forget the stored token and cache
  top tracks|artists|genres|moods        show top items
      -range short_term|medium_term|long_term
      -refresh                           ignore stored statistics
      -json                              print JSON
  search [-limit n] <query>              search tracks
  sync [-force]                          refresh every time range
`

var errUsage = errors.New("invalid usage")

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("spotify-stats", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", "spotify-stats.yaml", "path to the YAML config file")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}
	cmd, cmdArgs := fs.Arg(0), fs.Args()[1:]

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	switch cmd {
	case "serve":
		return a.serve(ctx)
	case "login":
		return a.login(ctx)
	case "logout":
		return a.logout(ctx)
	case "top":
		return a.top(ctx, cmdArgs)
	case "search":
		return a.search(ctx, cmdArgs)
	case "sync":
		return a.sync(ctx, cmdArgs)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", cmd)
		fs.Usage()
		return errUsage
	}
}
