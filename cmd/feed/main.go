package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"SignalFeed/internal/feed"
	xhttp "SignalFeed/pkg/http"
	applogger "SignalFeed/pkg/logger"

	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"
)

func main() {
	app := cli.NewApp()
	app.Name = "signalfeed"
	app.Usage = "follow the trading signal feed in a terminal"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "server", Value: "http://localhost:3000", Usage: "feed server base URL", EnvVar: "SIGNALFEED_SERVER"},
		cli.StringFlag{Name: "ws", Usage: "websocket URL for change hints (default derived from --server)", EnvVar: "SIGNALFEED_WS"},
		cli.IntFlag{Name: "limit", Value: 10, Usage: "entries per page (1-100)"},
		cli.StringFlag{Name: "reload", Value: string(feed.ReloadMerge), Usage: "reload mode on hints: merge or reset"},
		cli.DurationFlag{Name: "timeout", Value: 10 * time.Second, Usage: "per-request timeout"},
		cli.StringFlag{Name: "tz", Value: "Local", Usage: "time zone used for date groups"},
		cli.BoolFlag{Name: "no-clear", Usage: "append renders instead of redrawing the screen"},
		cli.StringFlag{Name: "log-level", Value: "warn", Usage: "log level, logs go to stderr"},
	}
	app.Action = runFeed

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runFeed(c *cli.Context) error {
	log, err := applogger.New(&applogger.Config{Level: c.String("log-level"), Format: "console", Output: "stderr"})
	if err != nil {
		return err
	}
	mode, err := feed.ParseReloadMode(c.String("reload"))
	if err != nil {
		return err
	}
	loc, err := time.LoadLocation(c.String("tz"))
	if err != nil {
		return fmt.Errorf("time zone: %w", err)
	}
	limit, err := pageLimit(c.Int("limit"))
	if err != nil {
		return err
	}
	wsURL := c.String("ws")
	if wsURL == "" {
		wsURL = wsURLFor(c.String("server"))
	}

	renderer := feed.NewTextRenderer(os.Stdout, loc, !c.Bool("no-clear"))
	client := xhttp.NewClient(xhttp.WithBaseURL(c.String("server")), xhttp.WithTimeout(c.Duration("timeout")))
	session := feed.NewSession(feed.NewHTTPFetcher(client), renderer,
		feed.WithLimit(limit),
		feed.WithFetchTimeout(c.Duration("timeout")),
		feed.WithLocation(loc),
		feed.WithReloadMode(mode),
		feed.WithLogger(log),
	)

	listener := feed.NewWSHintListener(wsURL, 2*time.Second, 30*time.Second, log)
	listener.OnState(func(connected bool) {
		if connected {
			renderer.SetStatus("live")
		} else {
			renderer.SetStatus("offline, reconnecting")
		}
		renderer.Render(session.Snapshot())
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	// failures are rendered; the session can still recover on the next hint.
	// The listener's first connect hints once more, covering rows stored
	// between this fetch and the subscription.
	_ = session.Start(ctx)

	g.Go(func() error {
		err := listener.Listen(ctx, func() {
			if _, err := session.OnHint(ctx); err != nil {
				log.Warn("reload after hint failed", applogger.Error(err))
			}
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		return commandLoop(ctx, os.Stdin, session, renderer, stop)
	})

	return g.Wait()
}

// commandLoop reads one command per line: more, reload, quit.
func commandLoop(ctx context.Context, in io.Reader, session *feed.Session, renderer *feed.TextRenderer, quit func()) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- strings.TrimSpace(sc.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				quit()
				return nil
			}
			switch strings.ToLower(line) {
			case "", "m", "more":
				if err := session.LoadMore(ctx); errors.Is(err, feed.ErrNoMoreData) {
					renderer.SetStatus("no more data")
					renderer.Render(session.Snapshot())
				}
			case "r", "reload":
				_ = session.Reload(ctx)
			case "q", "quit", "exit":
				quit()
				return nil
			default:
				renderer.SetStatus(fmt.Sprintf("unknown command %q (more, reload, quit)", line))
				renderer.Render(session.Snapshot())
			}
		}
	}
}

// maxPageLimit is the largest page the server returns unclamped.
const maxPageLimit = 100

func pageLimit(n int) (int, error) {
	if n < 1 || n > maxPageLimit {
		return 0, fmt.Errorf("limit must be between 1 and %d, got %d", maxPageLimit, n)
	}
	return n, nil
}

func wsURLFor(server string) string {
	u := strings.TrimRight(server, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}
