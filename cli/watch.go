package cli

// This file contains the watch command that keeps the catalog hot-reloading
// and reports deltas as they happen.

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

func (a *App) watch(ctx *cli.Context) error {
	lib, sink, err := a.openLibrary(ctx, true)
	if err != nil {
		return err
	}
	defer lib.Close()
	defer sink.Close()

	if lib.Degraded() {
		a.logger.Warn().Msg("Running in degraded mode: edits on disk will not be picked up")
	}

	deltas, cancel := lib.SubscribeReloads()
	defer cancel()

	runCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Watching %d examples; press Ctrl-C to stop\n", lib.Catalog().Len())

	for {
		select {
		case <-runCtx.Done():
			fmt.Println("\nStopped")
			return nil
		case delta, ok := <-deltas:
			if !ok {
				return nil
			}
			fmt.Printf("catalog v%d:\n", delta.Version)
			for _, change := range delta.Changes {
				if len(change.Files) > 0 {
					kinds := make([]string, len(change.Files))
					for i, k := range change.Files {
						kinds[i] = k.String()
					}
					fmt.Printf("  %s %s (%v)\n", change.Kind, change.ID, kinds)
				} else {
					fmt.Printf("  %s %s\n", change.Kind, change.ID)
				}
			}
		}
	}
}
