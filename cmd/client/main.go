// Terminal chat client: connects to a chatrelay server, joins a room,
// replays recent history, and relays stdin lines as chat messages.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/arvhov/chatrelay/internal/client"
	"github.com/arvhov/chatrelay/internal/envelope"
	"github.com/arvhov/chatrelay/internal/logger"
	"github.com/arvhov/chatrelay/internal/store"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "server base URL")
	room := flag.String("room", "general", "room to join")
	username := flag.String("username", "", "display name (required)")
	flag.Parse()

	if *username == "" {
		fmt.Fprintln(os.Stderr, "usage: client -username <name> [-server url] [-room name]")
		os.Exit(2)
	}

	logger.InitLogger(logger.LogConfig{Level: "warn", LogToJSON: false})

	wsURL := strings.Replace(*server, "http", "ws", 1) + "/ws"
	manager := client.NewManager(client.Options{
		ServerURL: wsURL,
		Room:      *room,
		Username:  *username,
		Fetcher:   &client.HTTPFetcher{BaseURL: *server},
	}, printEnvelope, printHistory)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if err := manager.Send(line); err != nil {
				fmt.Fprintf(os.Stderr, "send: %v\n", err)
			}
		}
		stop()
	}()

	err := manager.Run(ctx)
	switch {
	case errors.Is(err, client.ErrRetriesExhausted):
		fmt.Fprintln(os.Stderr, "connection lost and could not be re-established, giving up")
		os.Exit(1)
	case errors.Is(err, context.Canceled):
		fmt.Println("bye")
	case err != nil:
		fmt.Fprintf(os.Stderr, "client: %v\n", err)
		os.Exit(1)
	}
}

func printEnvelope(env envelope.Envelope) {
	switch env.Type {
	case envelope.TypeChat:
		fmt.Printf("[%s] %s: %s\n", env.Room, env.Username, env.Content)
	case envelope.TypeSystem:
		fmt.Printf("* %s\n", env.Text)
	case envelope.TypeError:
		fmt.Fprintf(os.Stderr, "! %s\n", env.Text)
	}
}

func printHistory(messages []store.Message) {
	for _, msg := range messages {
		fmt.Printf("[%s] %s: %s\n", msg.Room, msg.Username, msg.Content)
	}
}
