package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"matchchat/internal/chat"
	"matchchat/internal/config"
	"matchchat/internal/logging"
	"matchchat/internal/metrics"
	"matchchat/internal/types"

	"github.com/spf13/cobra"
)

var syncChannel int64

// syncCmd runs the polling engine and tails the selected channel
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Poll the backend and print new messages as they arrive",
	Long: `Starts the directory loop and, when --channel is given, the message and
presence loops for that channel. New messages are printed as they merge.
The config file is watched; polling intervals are applied without restart.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().Int64Var(&syncChannel, "channel", 0, "Channel to tail (0 = directory only)")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(context.Background())
	defer cancel()

	engine, cleanup, err := buildEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if addr := cfg.Metrics.ListenAddr; addr != "" {
		srv := serveMetrics(addr)
		defer srv.Close()
	}

	watcher, err := config.NewWatcher(configPath, func(next *config.Config) {
		engine.SetIntervals(intervalsFrom(next))
	})
	if err != nil {
		logging.ConfigWarn("config watcher disabled: %v", err)
	} else if err := watcher.Start(ctx); err != nil {
		logging.ConfigWarn("config watcher disabled: %v", err)
	} else {
		defer watcher.Stop()
	}

	if err := engine.RefreshDirectory(ctx); err != nil {
		logging.SnapshotWarn("initial directory fetch failed (%s): %v", types.Classify(err), err)
	}
	printChannels(cmd.OutOrStdout(), engine.View().Channels)

	tail := newTailer(cmd.OutOrStdout(), syncChannel)
	engine.OnChange(tail.onChange)
	engine.Start()

	if syncChannel != 0 {
		if err := engine.Select(syncChannel); err != nil {
			return err
		}
	}

	<-ctx.Done()
	return nil
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.BootWarn("metrics server: %v", err)
		}
	}()
	logging.Boot("metrics on %s/metrics", addr)
	return srv
}

// tailer prints each message of one channel once.
type tailer struct {
	mu      sync.Mutex
	out     io.Writer
	channel int64
	seen    map[int64]bool
	typing  bool
}

func newTailer(out io.Writer, channel int64) *tailer {
	return &tailer{out: out, channel: channel, seen: make(map[int64]bool)}
}

func (t *tailer) onChange(v chat.View) {
	if v.Selected != t.channel || t.channel == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range v.Messages {
		if t.seen[m.ID] {
			continue
		}
		t.seen[m.ID] = true
		fmt.Fprintln(t.out, formatMessage(m))
	}
	if v.Presence.Typing != t.typing {
		t.typing = v.Presence.Typing
		if t.typing {
			fmt.Fprintln(t.out, "... typing")
		}
	}
}

func formatMessage(m types.Message) string {
	ts := time.UnixMilli(m.TimestampMillis).Format("15:04:05")
	switch {
	case m.IsSystem():
		return fmt.Sprintf("[%s] * %s", ts, m.Text)
	case m.SenderID == types.AssistantSenderID:
		return fmt.Sprintf("[%s] assistant: %s", ts, m.Text)
	default:
		return fmt.Sprintf("[%s] %d: %s", ts, m.SenderID, m.Text)
	}
}

func printChannels(out io.Writer, chans []types.Channel) {
	for _, ch := range chans {
		preview := ch.LastPreviewText
		if len(preview) > 40 {
			preview = preview[:40] + "..."
		}
		fmt.Fprintf(out, "%6d  %-10s  %-24s  %s\n", ch.ID, ch.Kind, ch.DisplayName, preview)
	}
}

