package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/brojonat/remit/client"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

func walletCommands() *cli.Command {
	return &cli.Command{
		Name:  "wallet",
		Usage: "Wallet commands",
		Subcommands: []*cli.Command{
			walletShowCommand(),
			walletSendCommand(),
			walletAddCommand(),
			walletPayCommand(),
			walletHistoryCommand(),
			walletCurrencyCommand(),
			walletWatchCommand(),
		},
	}
}

func jqFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "jq",
		Usage: "jq filter applied to the JSON output (e.g. '.[] | select(.type == \"send\")')",
	}
}

func newWalletClient(c *cli.Context) (*client.Client, error) {
	serverURL := c.String("server-url")
	if serverURL == "" {
		return nil, fmt.Errorf("server-url is required (set REMIT_SERVER_URL env var or use --server-url)")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	return client.NewClient(serverURL, nil, logger), nil
}

func walletShowCommand() *cli.Command {
	return &cli.Command{
		Name:  "show",
		Usage: "Show balance, exchange rate and the current notice",
		Flags: []cli.Flag{jqFlag()},
		Action: func(c *cli.Context) error {
			cl, err := newWalletClient(c)
			if err != nil {
				return err
			}

			state, err := cl.Get(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get wallet: %w", err)
			}

			if filter := c.String("jq"); filter != "" {
				return printJQ(c.App.Writer, filter, state)
			}
			if c.Bool("json") {
				return printJSON(c.App.Writer, state)
			}

			w := c.App.Writer
			fmt.Fprintln(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
			fmt.Fprintf(w, "Wallet %s\n", state.ID)
			fmt.Fprintln(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
			fmt.Fprintf(w, "Balance:       %s\n", state.BalanceDisplay)
			fmt.Fprintf(w, "Currency:      %s\n", state.Currency)
			fmt.Fprintf(w, "Exchange Rate: 1 %s = %s %s\n", state.ExchangeRate.From, state.ExchangeRate.Rate, state.ExchangeRate.To)
			fmt.Fprintf(w, "Card Payments: %t\n", state.CardPaymentsEnabled)
			if state.AddMoney.State != "closed" {
				fmt.Fprintf(w, "Add Money:     %s", state.AddMoney.State)
				if state.AddMoney.Error != "" {
					fmt.Fprintf(w, " (%s)", state.AddMoney.Error)
				}
				fmt.Fprintln(w)
			}
			if state.Notice != nil {
				fmt.Fprintf(w, "\n[%s] %s\n", state.Notice.Kind, state.Notice.Message)
			}
			return nil
		},
	}
}

func walletSendCommand() *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "Send money to a recipient",
		ArgsUsage: "AMOUNT RECIPIENT",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "currency",
				Aliases: []string{"c"},
				Usage:   "Currency to send from (defaults to the wallet's selected currency)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return fmt.Errorf("amount and recipient are required")
			}

			cl, err := newWalletClient(c)
			if err != nil {
				return err
			}

			txn, err := cl.Send(context.Background(), client.SendRequest{
				Amount:       c.Args().Get(0),
				Recipient:    strings.Join(c.Args().Slice()[1:], " "),
				FromCurrency: strings.ToUpper(c.String("currency")),
			})
			if err != nil {
				return fmt.Errorf("failed to send money: %w", err)
			}

			if c.Bool("json") {
				return printJSON(c.App.Writer, txn)
			}
			fmt.Fprintf(c.App.Writer, "✓ Sent %s %s to %s\n", txn.Amount, txn.FromCurrency, txn.Recipient)
			fmt.Fprintf(c.App.Writer, "  Transaction: %s\n", txn.ID)
			return nil
		},
	}
}

func walletAddCommand() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Add money by bank transfer or UPI",
		ArgsUsage: "AMOUNT",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "method",
				Aliases: []string{"m"},
				Value:   "bank",
				Usage:   "Payment method: bank or upi (use 'wallet pay' for cards)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("amount is required")
			}

			cl, err := newWalletClient(c)
			if err != nil {
				return err
			}

			txn, err := cl.Deposit(context.Background(), c.Args().Get(0), c.String("method"))
			if err != nil {
				return fmt.Errorf("failed to add money: %w", err)
			}

			if c.Bool("json") {
				return printJSON(c.App.Writer, txn)
			}
			fmt.Fprintf(c.App.Writer, "✓ Added %s %s via %s\n", txn.Amount, txn.FromCurrency, txn.Method)
			fmt.Fprintf(c.App.Writer, "  Transaction: %s\n", txn.ID)
			return nil
		},
	}
}

func walletPayCommand() *cli.Command {
	return &cli.Command{
		Name:      "pay",
		Usage:     "Add money by card",
		ArgsUsage: "AMOUNT",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "payment-method",
				Aliases:  []string{"p"},
				Usage:    "Tokenized card from the processor (e.g. pm_card_visa)",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("amount is required")
			}

			cl, err := newWalletClient(c)
			if err != nil {
				return err
			}

			ctx := context.Background()
			if err := openCardEntry(ctx, cl, c.Args().Get(0)); err != nil {
				return err
			}

			txn, err := cl.PayByCard(ctx, c.String("payment-method"))
			if err != nil {
				var apiErr *client.APIError
				if errors.As(err, &apiErr) {
					return fmt.Errorf("card payment failed: %s", apiErr.Message)
				}
				return fmt.Errorf("card payment failed: %w", err)
			}

			if c.Bool("json") {
				return printJSON(c.App.Writer, txn)
			}
			fmt.Fprintf(c.App.Writer, "✓ Added %s %s by card\n", txn.Amount, txn.FromCurrency)
			fmt.Fprintf(c.App.Writer, "  Transaction: %s\n", txn.ID)
			return nil
		},
	}
}

// openCardEntry walks the add-money panel to card entry with amount filled in.
func openCardEntry(ctx context.Context, cl *client.Client, amount string) error {
	state, err := cl.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get wallet: %w", err)
	}
	if !state.CardPaymentsEnabled {
		return fmt.Errorf("card payments are not enabled on this server")
	}

	panel := &state.AddMoney
	if panel.State == "closed" {
		if panel, err = cl.ToggleAddMoney(ctx); err != nil {
			return fmt.Errorf("failed to open add money: %w", err)
		}
	}
	if panel.State == "choosing-method" {
		if _, err = cl.ChooseMethod(ctx, "card"); err != nil {
			return fmt.Errorf("failed to choose card: %w", err)
		}
	}
	if _, err = cl.SetAddAmount(ctx, amount); err != nil {
		return fmt.Errorf("failed to set amount: %w", err)
	}
	return nil
}

func walletHistoryCommand() *cli.Command {
	return &cli.Command{
		Name:    "history",
		Aliases: []string{"txns"},
		Usage:   "List transactions, newest first",
		Flags:   []cli.Flag{jqFlag()},
		Action: func(c *cli.Context) error {
			cl, err := newWalletClient(c)
			if err != nil {
				return err
			}

			txns, err := cl.Transactions(context.Background())
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}

			if filter := c.String("jq"); filter != "" {
				return printJQ(c.App.Writer, filter, txns)
			}
			if c.Bool("json") {
				return printJSON(c.App.Writer, txns)
			}

			w := c.App.Writer
			if len(txns) == 0 {
				fmt.Fprintln(w, "No transactions")
				return nil
			}
			fmt.Fprintf(w, "%-10s  %-7s  %-14s  %-14s  %s\n", "DATE", "TYPE", "AMOUNT", "CONVERTED", "RECIPIENT")
			for _, txn := range txns {
				amount := txn.AmountDisplay
				if amount == "" {
					amount = txn.Amount.String() + " " + txn.FromCurrency
				}
				fmt.Fprintf(w, "%-10s  %-7s  %-14s  %-14s  %s\n", txn.Date, txn.Type, amount, txn.ConvertedDisplay, txn.Recipient)
			}
			fmt.Fprintf(w, "\n%d transaction(s)\n", len(txns))
			return nil
		},
	}
}

func walletCurrencyCommand() *cli.Command {
	return &cli.Command{
		Name:      "currency",
		Usage:     "Select the wallet currency",
		ArgsUsage: "CODE",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("currency code is required")
			}

			cl, err := newWalletClient(c)
			if err != nil {
				return err
			}

			state, err := cl.SelectCurrency(context.Background(), strings.ToUpper(c.Args().Get(0)))
			if err != nil {
				return fmt.Errorf("failed to select currency: %w", err)
			}

			if c.Bool("json") {
				return printJSON(c.App.Writer, state)
			}
			fmt.Fprintf(c.App.Writer, "✓ Currency set to %s\n", state.Currency)
			fmt.Fprintf(c.App.Writer, "  Balance: %s\n", state.BalanceDisplay)
			return nil
		},
	}
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// printJQ runs filter over v's JSON form and prints every result on its own line.
func printJQ(w io.Writer, filter string, v any) error {
	results, err := runJQ(filter, v)
	if err != nil {
		return err
	}
	for _, r := range results {
		if s, ok := r.(string); ok {
			fmt.Fprintln(w, s)
			continue
		}
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to encode jq result: %w", err)
		}
		fmt.Fprintln(w, string(data))
	}
	return nil
}

// runJQ evaluates filter against v. gojq only accepts plain JSON values, so v
// is round-tripped through encoding/json first.
func runJQ(filter string, v any) ([]any, error) {
	query, err := gojq.Parse(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode jq input: %w", err)
	}
	var input any
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, fmt.Errorf("failed to decode jq input: %w", err)
	}

	var results []any
	iter := code.Run(input)
	for {
		out, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := out.(error); ok {
			return nil, fmt.Errorf("jq filter %q failed: %w", filter, err)
		}
		results = append(results, out)
	}
	return results, nil
}
