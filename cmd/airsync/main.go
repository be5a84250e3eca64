package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/google/uuid"

	"airsync/internal/app"
)

func main() {
	var (
		cfgPath          string
		once             bool
		resetID          string
		specImage        string
		checkSourceID    string
		checkDestination string
		discoverID       string
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config (json or yaml)")
	flag.BoolVar(&once, "once", false, "run a single scheduling pass and exit")
	flag.StringVar(&resetID, "reset", "", "enqueue a reset for the connection id and exit")
	flag.StringVar(&specImage, "get-spec", "", "enqueue a get-spec job for the docker image and exit")
	flag.StringVar(&checkSourceID, "check-source", "", "enqueue a connection check for the source id and exit")
	flag.StringVar(&checkDestination, "check-destination", "", "enqueue a connection check for the destination id and exit")
	flag.StringVar(&discoverID, "discover", "", "enqueue a schema discovery for the source id and exit")
	flag.Parse()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	oneShot := func(run func(context.Context) (string, error)) {
		out, err := run(ctx)
		_ = a.Close()
		if err != nil {
			fmt.Println("error:", err)
			os.Exit(1)
		}
		fmt.Println(out)
	}

	switch {
	case once:
		oneShot(func(ctx context.Context) (string, error) {
			rep, err := a.RunOnce(ctx)
			return fmt.Sprintf("evaluated=%d enqueued=%d skipped=%d failed=%d",
				rep.Evaluated, rep.Enqueued, rep.Skipped, rep.Failed), err
		})
		return
	case resetID != "":
		oneShot(func(ctx context.Context) (string, error) {
			id, err := uuid.Parse(resetID)
			if err != nil {
				return "", fmt.Errorf("-reset: %w", err)
			}
			jobID, ok, err := a.Reset(ctx, id)
			if err != nil || !ok {
				return "reset not enqueued: connection has an active job", err
			}
			return fmt.Sprintf("reset job %d enqueued", jobID), nil
		})
		return
	case specImage != "":
		oneShot(func(ctx context.Context) (string, error) {
			jobID, err := a.GetSpec(ctx, specImage)
			return fmt.Sprintf("get_spec job %d enqueued", jobID), err
		})
		return
	case checkSourceID != "", checkDestination != "", discoverID != "":
		oneShot(func(ctx context.Context) (string, error) {
			var (
				raw  = checkSourceID
				kind = "check_connection_source"
				run  = a.CheckSource
			)
			if checkDestination != "" {
				raw, kind, run = checkDestination, "check_connection_destination", a.CheckDestination
			} else if discoverID != "" {
				raw, kind, run = discoverID, "discover_schema", a.Discover
			}
			id, err := uuid.Parse(raw)
			if err != nil {
				return "", fmt.Errorf("invalid id %q: %w", raw, err)
			}
			jobID, err := run(ctx, id)
			return fmt.Sprintf("%s job %d enqueued", kind, jobID), err
		})
		return
	}

	if err := a.Start(ctx); err != nil {
		fmt.Println("fatal start:", err)
		_ = a.Close()
		os.Exit(1)
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	reason := app.StopUnknown
	select {
	case sig := <-sigCh:
		reason = app.StopSIGINT
		if sig == syscall.SIGTERM {
			reason = app.StopSIGTERM
		}
	case <-a.Done():
		reason = app.StopFatalError
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	cancel()
	if err := a.Stop(stopCtx, reason); err != nil {
		fmt.Println("stop:", err)
	}
	if err := a.Err(); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}
