package ctl

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"mediator/internal/protocol"
)

// Root собирает дерево команд mediatorctl.
func Root(version string, newClient func(server string) Client) *cobra.Command {
	var server string
	root := &cobra.Command{
		Use:               "mediatorctl",
		Short:             "Command line client for the trade mediator",
		Version:           version,
		SilenceUsage:      true,
		DisableAutoGenTag: true,
	}
	root.PersistentFlags().StringVar(&server, "server", envOr("MEDIATOR_URL", "http://localhost:8080"), "mediator API address")
	client := func() Client { return newClient(server) }

	root.AddCommand(Keygen(), Actions(), Decode(), Send(client), Listen(client))
	return root
}

func Keygen() *cobra.Command {
	var mnemonic string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a key from a new or given BIP-39 mnemonic",
		RunE: func(c *cobra.Command, args []string) error {
			if mnemonic == "" {
				var err error
				if mnemonic, err = protocol.NewMnemonic(); err != nil {
					return err
				}
			}
			keys, err := protocol.KeysFromMnemonic(mnemonic, "")
			if err != nil {
				return fmt.Errorf("invalid mnemonic: %w", err)
			}
			out := c.OutOrStdout()
			fmt.Fprintf(out, "mnemonic: %s\n", mnemonic)
			fmt.Fprintf(out, "secret:   %s\n", keys.SecretHex())
			fmt.Fprintf(out, "pubkey:   %s\n", keys.PublicKey())
			return nil
		},
		DisableAutoGenTag: true,
	}
	cmd.Flags().StringVar(&mnemonic, "mnemonic", "", "derive the key from this phrase instead of a new one")
	return cmd
}

func Actions() *cobra.Command {
	return &cobra.Command{
		Use:   "actions",
		Short: "List protocol action tags",
		Run: func(c *cobra.Command, args []string) {
			for _, a := range protocol.Actions() {
				fmt.Fprintln(c.OutOrStdout(), a.String())
			}
		},
		DisableAutoGenTag: true,
	}
}

func Decode() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode [envelope-json]",
		Short: "Verify an envelope and print its message; reads stdin without an argument",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			var raw []byte
			if len(args) == 1 {
				raw = []byte(args[0])
			} else {
				var err error
				if raw, err = io.ReadAll(c.InOrStdin()); err != nil {
					return err
				}
			}
			var env protocol.Envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				return fmt.Errorf("failed to parse envelope: %w", err)
			}
			return printEnvelope(c.OutOrStdout(), &env)
		},
		DisableAutoGenTag: true,
	}
	return cmd
}

func printEnvelope(out io.Writer, env *protocol.Envelope) error {
	if err := env.Verify(); err != nil {
		return err
	}
	msg, err := protocol.ParseMessage(env.Content)
	if err != nil {
		return err
	}
	pretty, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "from:   %s\naction: %s\n%s\n", env.Pubkey, msg.Action(), pretty)
	return nil
}

func Send(client func() Client) *cobra.Command {
	var (
		secret     string
		action     string
		orderID    string
		payload    string
		requestID  uint64
		tradeIndex int64
		dispute    bool
		pow        int
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Sign a message and submit it to the mediator",
		RunE: func(c *cobra.Command, args []string) error {
			keys, err := protocol.KeysFromHex(secret)
			if err != nil {
				return fmt.Errorf("invalid secret: %w", err)
			}
			a, err := protocol.Decode(action)
			if err != nil {
				return err
			}
			var p *protocol.Payload
			if payload != "" {
				p = &protocol.Payload{}
				if err := json.NewDecoder(strings.NewReader(payload)).Decode(p); err != nil {
					return fmt.Errorf("invalid payload: %w", err)
				}
			}
			var id *string
			if orderID != "" {
				id = &orderID
			}
			var req *uint64
			if requestID > 0 {
				req = &requestID
			}
			var msg protocol.Message
			if dispute {
				msg = protocol.NewDisputeMessage(id, req, a, p)
			} else {
				var idx *int64
				if tradeIndex > 0 {
					idx = &tradeIndex
				}
				msg = protocol.NewOrderMessage(id, req, idx, a, p)
			}
			if !msg.Inner().Verify() {
				return fmt.Errorf("message is not valid for action %s", a)
			}
			env, err := protocol.SealMessage(keys, msg, pow)
			if err != nil {
				return err
			}
			if err := client().Submit(env); err != nil {
				return err
			}
			fmt.Fprintln(c.OutOrStdout(), env.ID)
			return nil
		},
		DisableAutoGenTag: true,
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("MEDIATOR_SECRET"), "hex secret key (default: $MEDIATOR_SECRET)")
	cmd.Flags().StringVar(&action, "action", "", "action tag, see mediatorctl actions")
	cmd.Flags().StringVar(&orderID, "id", "", "order or dispute id")
	cmd.Flags().StringVar(&payload, "payload", "", "payload json, e.g. {\"amount\":1000}")
	cmd.Flags().Uint64Var(&requestID, "request-id", 0, "request id echoed in replies")
	cmd.Flags().Int64Var(&tradeIndex, "trade-index", 0, "trade index for order and take actions")
	cmd.Flags().BoolVar(&dispute, "dispute", false, "wrap as a dispute message")
	cmd.Flags().IntVar(&pow, "pow", 0, "proof of work difficulty")
	cmd.MarkFlagRequired("action")
	return cmd
}

func Listen(client func() Client) *cobra.Command {
	var secret string
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Print messages the mediator delivers to this key",
		RunE: func(c *cobra.Command, args []string) error {
			keys, err := protocol.KeysFromHex(secret)
			if err != nil {
				return fmt.Errorf("invalid secret: %w", err)
			}
			return client().Listen(keys, func(env *protocol.Envelope) error {
				if err := printEnvelope(c.OutOrStdout(), env); err != nil {
					fmt.Fprintf(c.ErrOrStderr(), "skip %s: %v\n", env.ID, err)
				}
				return nil
			})
		},
		DisableAutoGenTag: true,
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("MEDIATOR_SECRET"), "hex secret key (default: $MEDIATOR_SECRET)")
	return cmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
