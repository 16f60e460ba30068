package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/matheus3301/wphook/internal/client"
	"github.com/matheus3301/wphook/internal/config"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func main() {
	configFlag := flag.String("config", config.DefaultPath(), "path to config.toml")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if args[0] == "init" {
		cmdInit(*configFlag, args[1:])
		return
	}

	cfg, err := config.Resolve(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
		os.Exit(1)
	}

	c, err := client.New(cfg.RPC.Socket)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon at %s: %v\n", cfg.RPC.Socket, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	switch args[0] {
	case "stats":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		cmdStats(ctx, c, *jsonFlag)
	case "watch":
		prefix := ""
		if len(args) >= 2 {
			prefix = args[1]
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		cmdWatch(ctx, c, prefix, *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: wphookctl [--config <path>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  init [--force]   Write a default config file")
	fmt.Fprintln(os.Stderr, "  stats            Show message and delivery counters")
	fmt.Fprintln(os.Stderr, "  watch [prefix]   Stream daemon events (e.g. message., contact.)")
}

func cmdInit(path string, args []string) {
	force := len(args) > 0 && args[0] == "--force"
	if _, err := os.Stat(path); err == nil && !force {
		fmt.Fprintf(os.Stderr, "error: %s already exists (use init --force to overwrite)\n", path)
		os.Exit(1)
	}
	if err := config.Save(path, config.Default()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s\n", path)
}

func cmdStats(ctx context.Context, c *client.Client, jsonOut bool) {
	resp, err := c.Events.Stats(ctx, &emptypb.Empty{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	stats := resp.AsMap()
	if jsonOut {
		outputJSON(stats)
		return
	}
	fmt.Printf("Messages:      %v\n", stats["totalMessages"])
	fmt.Printf("Conversations: %v\n", stats["totalConversations"])
	fmt.Printf("Sent:          %v\n", stats["sentCount"])
	fmt.Printf("Delivered:     %v\n", stats["deliveredCount"])
	fmt.Printf("Read:          %v\n", stats["readCount"])
}

func cmdWatch(ctx context.Context, c *client.Client, prefix string, jsonOut bool) {
	stream, err := c.Events.Watch(ctx, wrapperspb.String(prefix))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled {
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		evt := msg.AsMap()
		if jsonOut {
			outputJSON(evt)
			continue
		}
		fmt.Printf("%s %-24v %s\n", formatTime(evt["occurred_at_unix_ms"]), evt["kind"], formatPayload(evt["payload"]))
	}
}

func formatTime(v any) string {
	ms, _ := v.(float64)
	return time.UnixMilli(int64(ms)).Format("15:04:05.000")
}

func formatPayload(v any) string {
	payload, _ := v.(map[string]any)
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := ""
	for _, k := range keys {
		if s, ok := payload[k].(string); ok && s == "" {
			continue
		}
		if out != "" {
			out += " "
		}
		out += fmt.Sprintf("%s=%v", k, payload[k])
	}
	return out
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
