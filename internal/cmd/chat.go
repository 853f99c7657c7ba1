package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/agent"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/mode"
)

var (
	chatUser     string
	chatID       string
	chatMode     string
	chatNoStream bool
)

var chatCmd = &cobra.Command{
	Use:   "chat [query]",
	Short: "Send one message to a chat and print the answer",
	Long: `Send one message to a discovery or validation chat.

The answer streams to stdout as it is generated. Ctrl-C stops the stream;
the part already printed is saved as the answer and charged once.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatUser, "user", "", "User id (required)")
	chatCmd.Flags().StringVar(&chatID, "chat", "", "Chat id, created on first use (required)")
	chatCmd.Flags().StringVar(&chatMode, "mode", string(mode.NameDiscovery), "Chat mode (discovery, validation)")
	chatCmd.Flags().BoolVar(&chatNoStream, "no-stream", false, "Wait for the full answer instead of streaming")
	_ = chatCmd.MarkFlagRequired("user")
	_ = chatCmd.MarkFlagRequired("chat")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	ctx, span := tracer.Start(ctx, "chat")
	defer span.End()

	m, err := mode.Parse(chatMode, "")
	if err != nil {
		return err
	}
	if n := m.Name(); n != mode.NameDiscovery && n != mode.NameValidation {
		return fmt.Errorf("%w: %s is not a chat mode, use 'pain pdf' or 'pain landing'", mode.ErrUnknownMode, n)
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.withLLM(); err != nil {
		return err
	}

	command := agent.Command{
		Mode:   m,
		UserID: chatUser,
		ChatID: chatID,
		Query:  strings.Join(args, " "),
	}
	out := cmd.OutOrStdout()

	if chatNoStream {
		res, err := a.runner.Run(ctx, command)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, res.Text)
		log.Debug().Str("message_id", res.MessageID).Int("iterations", res.Iterations).Msg("chat_answered")
		return nil
	}
	return streamAnswer(ctx, a.runner, command, out)
}

// streamAnswer prints chunks as they arrive. An interrupt ends the stream
// without an error.
func streamAnswer(ctx context.Context, runner *agent.Runner, command agent.Command, out io.Writer) error {
	stream, err := runner.RunStream(ctx, command)
	if err != nil {
		return err
	}
	defer func() { _ = stream.Close() }()

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(out)
			return nil
		}
		if err != nil {
			fmt.Fprintln(out)
			if ctx.Err() != nil {
				log.Info().Str("message_id", stream.MessageID).Msg("chat_interrupted")
				return nil
			}
			return err
		}
		if _, err := io.WriteString(out, chunk); err != nil {
			return err
		}
	}
}
