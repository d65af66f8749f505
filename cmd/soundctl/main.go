// soundctl is an interactive client for exercising the soundboard protocol:
// it prints every envelope the server sends and turns stdin commands into
// action requests.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/jeffbot/soundboard/messages"

	"github.com/gorilla/websocket"
)

func main() {
	serverURL := flag.String("server", "ws://localhost:8765/ws", "WebSocket server URL")
	token := flag.String("token", "", "authenticate with this token on connect")
	flag.Parse()

	log.Printf("🔌 Connecting to %s...", *serverURL)

	conn, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	log.Println("✅ Connected!")

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	done := make(chan struct{})

	// Print every envelope the server sends
	go func() {
		defer close(done)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}

			var envelope map[string]any
			if err := json.Unmarshal(raw, &envelope); err != nil {
				log.Println("Parse error:", err)
				continue
			}

			if action, _ := envelope["action"].(string); action == messages.ActionError {
				fmt.Printf("❌ %s: %s\n", envelope["error_code"], envelope["error_message"])
				continue
			}
			pretty, _ := json.MarshalIndent(envelope, "", "  ")
			fmt.Printf("📨 %s\n", pretty)
		}
	}()

	send := func(msg any) {
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("Send error: %v", err)
		}
	}

	if *token != "" {
		send(messages.ActionRequest{Action: messages.ActionAuthenticate, Token: *token})
	}

	// Read commands from stdin
	input := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			input <- scanner.Text()
		}
		close(input)
	}()

	fmt.Println("Commands: list | play <name> | random | stop | status | ping | auth <token> | raw <json> | quit")

	for {
		select {
		case <-done:
			log.Println("Connection closed")
			return

		case <-interrupt:
			log.Println("\n👋 Interrupted, closing...")
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case line, ok := <-input:
			if !ok {
				return
			}
			cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
			switch cmd {
			case "":
			case "quit", "exit":
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			case "auth":
				send(messages.ActionRequest{Action: messages.ActionAuthenticate, Token: arg})
			case "play":
				send(messages.ActionRequest{Action: messages.ActionPlay, Filename: arg})
			case "list", "random", "stop", "status", "ping":
				send(messages.ActionRequest{Action: cmd})
			case "raw":
				// Send arbitrary bytes, useful for poking the error paths
				if err := conn.WriteMessage(websocket.TextMessage, []byte(arg)); err != nil {
					log.Printf("Send error: %v", err)
				}
			default:
				fmt.Printf("Unknown command: %s\n", cmd)
			}
		}
	}
}
