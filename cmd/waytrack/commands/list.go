package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/waytrack/waytrack/internal/compositor"
	"github.com/waytrack/waytrack/internal/logger"
	"github.com/waytrack/waytrack/internal/tracker"
	"github.com/waytrack/waytrack/internal/wayland"
)

var listWait time.Duration

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the compositor's toplevel windows",
	Long: `Connect to the compositor, collect the initial toplevel announcements
and print them. The connection is dropped afterwards.`,
	RunE: runList,
}

func init() {
	listCmd.Flags().DurationVar(&listWait, "wait", time.Second, "how long to collect announcements")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	logger.Init("error", true)

	tr := tracker.New(wayland.NewClient(), 128)
	sub, err := tr.Subscribe()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), listWait)
	defer cancel()

	windows := make(map[compositor.Handle]compositor.Info)
	var order []compositor.Handle
	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return err
		}
		switch ev := ev.(type) {
		case tracker.ToplevelAdd:
			if _, known := windows[ev.Info.Handle]; !known {
				order = append(order, ev.Info.Handle)
			}
			windows[ev.Info.Handle] = ev.Info
		case tracker.ToplevelUpdate:
			windows[ev.Info.Handle] = ev.Info
		case tracker.ToplevelRemove:
			delete(windows, ev.Handle)
		case tracker.Finished:
			return errors.New("compositor connection failed")
		}
	}

	if len(order) == 0 {
		fmt.Println("No toplevel windows reported.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "HANDLE\tAPP ID\tTITLE")
	for _, h := range order {
		info, ok := windows[h]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", uint32(info.Handle), info.AppID, info.Title)
	}
	return w.Flush()
}
