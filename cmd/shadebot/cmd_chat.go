package main

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"shadebot/cmd/shadebot/chat"
	"shadebot/internal/dispatch"
	"shadebot/internal/types"
)

var (
	chatCampaign string
	chatOnce     bool
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Talk to the bot from the terminal",
	Long: `Opens an interactive chat as a single customer (--user).

With --once the message given as arguments is processed and the reply
printed, without opening the interface.`,
	RunE: withApp(runChat),
}

func init() {
	chatCmd.Flags().StringVarP(&userID, "user", "u", "cli", "Customer id for the conversation")
	chatCmd.Flags().StringVar(&chatCampaign, "campaign", "", "Campaign ref attached to the first message")
	chatCmd.Flags().BoolVar(&chatOnce, "once", false, "Process a single message and exit")
}

func runChat(ctx context.Context, a *app, args []string) error {
	if chatOnce {
		if len(args) == 0 {
			return fmt.Errorf("--once needs a message")
		}
		res := a.dispatcher.Process(ctx, dispatch.Message{
			UserID:      userID,
			Text:        strings.Join(args, " "),
			CampaignRef: chatCampaign,
		})
		switch o := res.Outcome.(type) {
		case types.Text:
			fmt.Println(o.Content)
		case types.Image:
			fmt.Printf("%s\n[imagen] %s\n", o.Content, o.ImageURL)
		default:
			fmt.Printf("(sin respuesta: %s)\n", res.Handler)
		}
		return nil
	}

	m := chat.New(ctx, a.dispatcher, chat.Config{
		UserID:      userID,
		CampaignRef: chatCampaign,
		StoreName:   cfg.Bot.StoreName,
	})
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
