package cli

// This file contains the history and revert commands backed by the
// snapshot store.

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

func (a *App) history(ctx *cli.Context) error {
	path := ctx.Args().First()
	if path == "" {
		return fmt.Errorf("no path specified: usage: %s history PATH", AppName)
	}

	lib, sink, err := a.openLibrary(ctx, false)
	if err != nil {
		return err
	}
	defer lib.Close()
	defer sink.Close()

	snaps := lib.SnapshotHistory(path)
	if len(snaps) == 0 {
		fmt.Printf("No snapshots captured for %s\n", path)
		return nil
	}

	fmt.Printf("\n=== Snapshots for %s (%d, newest first) ===\n\n", path, len(snaps))
	for _, snap := range snaps {
		state := fmt.Sprintf("%d bytes", snap.Size)
		if !snap.Existed {
			state = "did not exist"
		}
		fmt.Printf("%s  %s  %s\n", snap.ID, snap.CapturedAt.Format("2006-01-02 15:04:05"), state)
	}
	fmt.Printf("\nRevert: %s revert %s <SNAPSHOT-ID>\n", AppName, path)

	return nil
}

func (a *App) revert(ctx *cli.Context) error {
	path := ctx.Args().First()
	if path == "" {
		return fmt.Errorf("no path specified: usage: %s revert PATH [SNAPSHOT-ID]", AppName)
	}
	snapshotID := ctx.Args().Get(1)

	lib, sink, err := a.openLibrary(ctx, false)
	if err != nil {
		return err
	}
	defer lib.Close()
	defer sink.Close()

	if err := lib.Revert(path, snapshotID); err != nil {
		return err
	}

	fmt.Printf("Reverted %s\n", path)
	return nil
}
