package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/acolytehealth/rtconsole/cmd/rtconsole/internal/config"
	"github.com/acolytehealth/rtconsole/pkg/console"
	"github.com/acolytehealth/rtconsole/pkg/conversation"
	"github.com/acolytehealth/rtconsole/pkg/realtime"
)

var (
	chatTransport string
	chatModel     string
	chatVoice     string
)

var (
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	logStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open a realtime conversation",
	Long: `Open a realtime session and chat from the terminal.

Typed lines are sent as user messages, augmented with retrieval context
when the retrieval service is configured. Slash commands:

  /log    show the event log (delta events collapsed)
  /stop   end the session and clear the conversation
  /quit   exit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		contextDir, err := cfg.CurrentContextDir()
		if err != nil {
			return err
		}

		conCfg, err := config.LoadService[config.Console](contextDir, config.ServiceConsole)
		if err != nil {
			conCfg = &config.Console{}
		}
		apiKey := envOr("OPENAI_API_KEY", conCfg.APIKey)
		if apiKey == "" {
			return fmt.Errorf("no API key: set console.api_key or OPENAI_API_KEY")
		}

		model := chatModel
		if model == "" {
			model = conCfg.Model
		}
		voice := chatVoice
		if voice == "" {
			voice = conCfg.Voice
		}
		transport := chatTransport
		if transport == "" {
			transport = conCfg.Transport
		}

		client := realtime.NewClient(apiKey)
		connectConfig := &realtime.ConnectConfig{Model: model, Voice: voice}
		connect := func(ctx context.Context) (realtime.Session, error) {
			if transport == "websocket" {
				return client.ConnectWebSocket(ctx, connectConfig)
			}
			return client.ConnectWebRTC(ctx, connectConfig)
		}

		fetcher, err := buildFetcher(cmd.Context(), contextDir, apiKey)
		if err != nil {
			return err
		}

		c := console.New(connect, fetcher)
		if err := c.Start(cmd.Context()); err != nil {
			return err
		}
		defer c.Stop()

		if conCfg.Instructions != "" {
			if err := c.UpdateSession(&realtime.SessionConfig{
				Instructions: conCfg.Instructions,
			}); err != nil {
				fmt.Println(errorStyle.Render("session update failed: " + err.Error()))
			}
		}

		return chatLoop(cmd.Context(), c)
	},
}

// chatLoop reads lines from stdin and prints new messages as they
// arrive. A background poller mirrors the conversation thread into the
// terminal so assistant replies show up without user action.
func chatLoop(ctx context.Context, c *console.Console) error {
	for _, msg := range c.Messages() {
		printMessage(msg)
	}

	stop := make(chan struct{})
	defer close(stop)
	go watchMessages(c, stop)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "/quit":
			return nil
		case "/stop":
			c.Stop()
			fmt.Println(logStyle.Render("session stopped"))
			return nil
		case "/log":
			for _, event := range c.RenderLog() {
				fmt.Println(logStyle.Render(fmt.Sprintf("%s  %-6s  %s",
					event.Timestamp, event.Origin, event.Type)))
			}
			continue
		}

		if err := c.SendText(ctx, line); err != nil {
			fmt.Println(errorStyle.Render("send failed: " + err.Error()))
		}
	}
}

// watchMessages prints messages appended after the watcher started.
func watchMessages(c *console.Console, stop <-chan struct{}) {
	seen := len(c.Messages())
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			messages := c.Messages()
			if len(messages) < seen {
				// Thread was reset.
				seen = len(messages)
				continue
			}
			for _, msg := range messages[seen:] {
				if msg.Role == conversation.RoleAssistant {
					printMessage(msg)
				}
			}
			seen = len(messages)
		}
	}
}

func printMessage(msg conversation.Message) {
	switch msg.Role {
	case conversation.RoleUser:
		fmt.Println(userStyle.Render("you: ") + msg.Content)
	default:
		fmt.Println(assistantStyle.Render("assistant: ") + msg.Content)
	}
}

func init() {
	chatCmd.Flags().StringVar(&chatTransport, "transport", "", "transport: webrtc or websocket")
	chatCmd.Flags().StringVar(&chatModel, "model", "", "realtime model ID")
	chatCmd.Flags().StringVar(&chatVoice, "voice", "", "voice for audio output")
	rootCmd.AddCommand(chatCmd)
}
