package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"classalarm/internal/alarm"
	"classalarm/internal/app"
)

func main() {
	var (
		cfgPath string
		check   bool
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config (yaml or json)")
	flag.BoolVar(&check, "check", false, "run one alarm check, print the result and exit")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.NewApp(ctx, cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	if check {
		os.Exit(runCheck(ctx, a, os.Stdout))
	}

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		_ = a.Close()
		os.Exit(1)
	}

	reason := app.StopSignal
	select {
	case <-ctx.Done():
	case <-a.Done():
		reason = app.StopFatalError
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)

	if err := a.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func runCheck(ctx context.Context, a *app.App, out io.Writer) int {
	defer a.Close()
	rep, err := a.CheckOnce(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "check failed:", err)
		return 1
	}
	printReport(out, rep)
	return 0
}

func printReport(w io.Writer, rep alarm.Report) {
	fmt.Fprintln(w, rep.Summary())
	if rep.Count() == 0 {
		return
	}
	for _, line := range rep.Lines() {
		fmt.Fprintf(w, "  - %s\n", line)
	}
}
