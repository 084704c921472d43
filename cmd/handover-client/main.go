// Command handover-client is a small interactive terminal client for
// talking to a handover server, useful for manual testing.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"github.com/adtimokhin/handover/internal/session"
)

func main() {
	addr := flag.String("addr", "localhost:8080", "server address")
	role := flag.String("role", "requester", "connect as requester or operator")
	tenant := flag.String("tenant", "", "tenant id (server default when empty)")
	rawURL := flag.String("url", "", "full websocket URL, overrides -addr/-role/-tenant")
	flag.Parse()

	target := *rawURL
	if target == "" {
		u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws/" + *role}
		if *tenant != "" {
			u.RawQuery = "tenant=" + url.QueryEscape(*tenant)
		}
		target = u.String()
	}

	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial %s: %v\n", target, err)
		os.Exit(1)
	}
	defer conn.Close()
	fmt.Printf("connected to %s\n", target)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if closeErr, ok := err.(*websocket.CloseError); ok && closeErr.Text != "" {
					fmt.Printf("\nserver closed the connection: %s\n", closeErr.Text)
				} else {
					fmt.Printf("\nconnection lost: %v\n", err)
				}
				return
			}
			printEnvelope(session.Decode(data))
		}
	}()

	outgoing := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if line := scanner.Text(); line != "" {
				outgoing <- line
			}
		}
		close(outgoing)
	}()

	for {
		select {
		case <-done:
			return
		case line, ok := <-outgoing:
			if !ok {
				gracefulClose(conn, done)
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
				fmt.Fprintf(os.Stderr, "send: %v\n", err)
				return
			}
		case <-interrupt:
			fmt.Println("\ninterrupted, closing connection")
			gracefulClose(conn, done)
			return
		}
	}
}

// gracefulClose sends a close frame and waits briefly for the server to
// acknowledge before tearing down.
func gracefulClose(conn *websocket.Conn, done chan struct{}) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteMessage(websocket.CloseMessage, msg)
	select {
	case <-done:
	case <-time.After(time.Second):
	}
}

func printEnvelope(env session.Envelope) {
	switch env.Type {
	case session.TypeWelcome:
		fmt.Printf("[server] %s\n", env.Message)
	case session.TypeInfo:
		fmt.Printf("[info] %s\n", env.Message)
	case session.TypeError:
		fmt.Printf("[error] %s\n", env.Message)
	case session.TypeChatStarted:
		fmt.Printf("[info] %s\n", env.Message)
	case session.TypeMessage, session.TypeText:
		from := env.SenderID
		if from == "" {
			from = "server"
		}
		body := env.Content
		if body == "" {
			body = env.Message
		}
		fmt.Printf("[%s] %s\n", from, body)
	default:
		fmt.Printf("[%s] %s%s\n", env.Type, env.Message, env.Content)
	}
}
