package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"ranobepub/internal/notify"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var (
		server string
		tcp    bool
	)

	cmd := &cobra.Command{
		Use:   "watch [job-id]",
		Short: "Follow conversion progress from the API server",
		Long: "With a job id, streams that job over the websocket endpoint until it finishes.\n" +
			"With --tcp, prints every event of the TCP feed until interrupted.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			if tcp {
				addr := server
				if addr == "" {
					addr = localAddr(cfg.Server.SyncAddr)
				}
				conn, err := net.Dial("tcp", addr)
				if err != nil {
					return fmt.Errorf("dial %s: %w", addr, err)
				}
				go func() {
					<-runCtx.Done()
					_ = conn.Close()
				}()
				defer conn.Close()
				return followLines(conn, out)
			}

			if len(args) == 0 {
				return fmt.Errorf("job id required unless --tcp is set")
			}
			base := server
			if base == "" {
				base = "ws://" + localAddr(cfg.Server.Addr)
			}
			u, err := wsURL(base, args[0])
			if err != nil {
				return err
			}
			conn, _, err := websocket.DefaultDialer.DialContext(runCtx, u, nil)
			if err != nil {
				return fmt.Errorf("dial %s: %w", u, err)
			}
			go func() {
				<-runCtx.Done()
				_ = conn.Close()
			}()
			defer conn.Close()
			return followJob(conn, out)
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "Server address (ws://host:port, or host:port with --tcp)")
	cmd.Flags().BoolVar(&tcp, "tcp", false, "Read the TCP feed instead of the websocket stream")
	return cmd
}

// followJob prints events until the job completes or fails.
func followJob(conn *websocket.Conn, out io.Writer) error {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		line, ev, ok := formatEvent(payload)
		if line != "" {
			fmt.Fprintln(out, line)
		}
		if !ok {
			continue
		}
		switch ev.Type {
		case notify.EventRunCompleted:
			return nil
		case notify.EventRunFailed:
			return fmt.Errorf("job failed: %s", ev.Error)
		}
	}
}

func followLines(r io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line, _, _ := formatEvent(sc.Bytes()); line != "" {
			fmt.Fprintln(out, line)
		}
	}
	return sc.Err()
}

// formatEvent renders one progress message. ok reports whether it was a
// pipeline event rather than a greeting or unknown payload.
func formatEvent(payload []byte) (string, notify.Event, bool) {
	var ev notify.Event
	if err := json.Unmarshal(payload, &ev); err != nil || ev.Type == "" {
		return strings.TrimSpace(string(payload)), ev, false
	}

	prefix := ""
	if ev.Job != "" {
		prefix = "[" + shortID(ev.Job) + "] "
	}
	switch ev.Type {
	case notify.EventRunStarted:
		return prefix + "started " + ev.Work, ev, true
	case notify.EventChapterDownloaded:
		return fmt.Sprintf("%sdownloaded a chapter: %s (%d/%d)", prefix, ev.Name, ev.Index, ev.Total), ev, true
	case notify.EventChapterFailed:
		return fmt.Sprintf("%serror while downloading chapter %s of volume %s: %s", prefix, ev.Number, ev.Volume, ev.Error), ev, true
	case notify.EventRunCompleted:
		return fmt.Sprintf("%sfinished %s: %d chapters", prefix, ev.Work, ev.Total), ev, true
	case notify.EventRunFailed:
		return fmt.Sprintf("%sfailed %s: %s", prefix, ev.Work, ev.Error), ev, true
	case "welcome":
		return "", ev, false
	default:
		return prefix + string(ev.Type), ev, true
	}
}

func wsURL(base, job string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"job": {job}}.Encode()
	return u.String(), nil
}

// localAddr turns a listen address such as ":8080" into a dialable one.
func localAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "127.0.0.1" + addr
	}
	return addr
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
