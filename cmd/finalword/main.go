package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"finalword/internal/app"
	"finalword/internal/model"
)

const usage = `usage: finalword [-config path] <command> [flags]

commands:
  serve                      run the dispatch scheduler, ops server and config watcher
  dispatch                   run one dispatch pass and exit
  migrate                    apply the database schema and exit
  user add                   create a user
  user interval              change a user's check-in interval (days)
  checkin                    record a check-in for a user
  message create -f FILE     schedule a message described by a YAML/JSON file
  message update -id N -f FILE
  message delete -id N
  message resend -id N
  message list               list a user's messages
  message show -user N -id N
  stats -user N              home summary for a user
  activity -user N           a user's activity log
`

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./finalword.yaml", "path to config (yaml or json); empty for defaults")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	if flag.Arg(0) == "serve" {
		err = serve(ctx, cfgPath)
	} else {
		err = oneShot(ctx, cfgPath, flag.Args())
	}
	if err == nil {
		return
	}
	var ue usageError
	if errors.As(err, &ue) {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if code := model.CodeOf(err); code != "" {
		fmt.Fprintf(os.Stderr, "error [%s]: %v\n", code, err)
	} else {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(1)
}

func serve(ctx context.Context, cfgPath string) error {
	a, err := app.New(ctx, cfgPath)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Close()
		return err
	}

	reason := app.StopSignal
	select {
	case <-ctx.Done():
	case <-a.Done():
		reason = app.StopFatalError
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = a.Stop(stopCtx, reason)
	if reason == app.StopFatalError {
		return a.Err()
	}
	return nil
}

func oneShot(ctx context.Context, cfgPath string, args []string) error {
	a, err := app.New(ctx, cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()
	return run(ctx, a, args, os.Stdout)
}
