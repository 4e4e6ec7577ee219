package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	natspkg "github.com/brojonat/remit/service/nats"
	"github.com/urfave/cli/v2"
)

func walletWatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Stream new transactions as they are recorded (Ctrl+C to stop)",
		Action: func(c *cli.Context) error {
			serverURL := c.String("server-url")
			jsonOutput := c.Bool("json")

			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigChan)
			go func() {
				select {
				case <-sigChan:
					cancel()
				case <-ctx.Done():
				}
			}()

			req, err := http.NewRequestWithContext(ctx, "GET", serverURL+"/api/v1/stream/transactions", nil)
			if err != nil {
				return fmt.Errorf("failed to create request: %w", err)
			}
			req.Header.Set("Accept", "text/event-stream")

			// No timeout for streaming
			resp, err := (&http.Client{}).Do(req)
			if err != nil {
				return fmt.Errorf("failed to connect to SSE endpoint: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned status %d (is NATS configured?)", resp.StatusCode)
			}

			err = readSSE(resp.Body, func(event, data string) error {
				return handleSSEEvent(c.App.Writer, c.App.ErrWriter, event, data, jsonOutput)
			})
			if err != nil && ctx.Err() != nil {
				if !jsonOutput {
					fmt.Fprintf(c.App.ErrWriter, "\nDisconnected\n")
				}
				return nil
			}
			return err
		},
	}
}

// readSSE splits an event stream into (event, data) pairs. Comment lines
// such as keepalives are skipped.
func readSSE(r io.Reader, handle func(event, data string) error) error {
	scanner := bufio.NewScanner(r)
	var currentEvent, currentData string

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if currentEvent != "" && currentData != "" {
				if err := handle(currentEvent, currentData); err != nil {
					return err
				}
			}
			currentEvent, currentData = "", ""
			continue
		}

		switch {
		case strings.HasPrefix(line, "event:"):
			currentEvent = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			currentData = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading SSE stream: %w", err)
	}
	return nil
}

func handleSSEEvent(out, errOut io.Writer, eventType, data string, jsonOutput bool) error {
	switch eventType {
	case "connected":
		if !jsonOutput {
			var info struct {
				Wallet string `json:"wallet"`
			}
			if err := json.Unmarshal([]byte(data), &info); err != nil {
				return err
			}
			fmt.Fprintf(errOut, "✓ Watching wallet: %s\n\n", info.Wallet)
		}
		return nil

	case "transaction":
		var txn natspkg.TransactionEvent
		if err := json.Unmarshal([]byte(data), &txn); err != nil {
			return err
		}
		if jsonOutput {
			fmt.Fprintln(out, data)
		} else {
			printTransactionEvent(out, txn)
		}
		return nil

	case "error":
		var errInfo struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal([]byte(data), &errInfo); err != nil {
			return err
		}
		return fmt.Errorf("server error: %s", errInfo.Error)

	default:
		return nil
	}
}

func printTransactionEvent(w io.Writer, txn natspkg.TransactionEvent) {
	fmt.Fprintln(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Fprintf(w, "Transaction: %s\n", txn.TransactionID)
	fmt.Fprintf(w, "Type:        %s\n", txn.Type)
	fmt.Fprintf(w, "Amount:      %s %s\n", txn.Amount, txn.FromCurrency)
	fmt.Fprintf(w, "Recipient:   %s\n", txn.Recipient)
	if txn.Method != "" {
		fmt.Fprintf(w, "Method:      %s\n", txn.Method)
	}
	fmt.Fprintf(w, "Date:        %s\n", txn.Date)
	fmt.Fprintf(w, "Published:   %s\n", txn.PublishedAt.Format(time.RFC3339))
	fmt.Fprintln(w)
}
