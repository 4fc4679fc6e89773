package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/townhall/internal/adapters/driving/tui"
	"github.com/custodia-labs/townhall/internal/app"
	"github.com/custodia-labs/townhall/internal/logger"
)

// guestFile holds the guest id the terminal chat runs as, inside the home directory.
const guestFile = "guest"

var (
	chatResume string
	chatList   bool
	chatGuest  string
)

// runProgram runs the interactive program. Tests replace it.
var runProgram = func(a *tui.App) error {
	return a.Run()
}

var chatCmd = &cobra.Command{
	Use:     "chat",
	Aliases: []string{"tui"},
	Short:   "Chat with the assistant in the terminal",
	Long: `Opens the interactive terminal interface. It starts on a conversation with
the assistant; esc leads to document search and the document browser.

The guest identity is kept in the home directory so conversations can be
listed and resumed later.

Examples:
  townhall chat
  townhall chat --list
  townhall chat --resume 0b8c3f7e-...`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatResume, "resume", "", "reopen an earlier conversation by id")
	chatCmd.Flags().BoolVar(&chatList, "list", false, "list this guest's conversations and exit")
	chatCmd.Flags().StringVar(&chatGuest, "guest", "", "guest id to act as (default: the stored one)")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) (err error) {
	ctx := cmd.Context()
	if err := requireChat(ctx); err != nil {
		return err
	}

	home, err := app.ResolveHome(homeDir)
	if err != nil {
		return err
	}
	stored := readGuest(home)
	guestID := chatGuest
	if guestID == "" {
		guestID = stored
	}

	if chatList {
		return listConversations(ctx, cmd, guestID)
	}

	ports := &tui.Ports{
		Chat:      chatService,
		Search:    searchService,
		Documents: documentService,
	}
	a, err := tui.NewApp(ports, guestID)
	if err != nil {
		return fmt.Errorf("failed to create TUI: %w", err)
	}
	a.WithContext(ctx)
	if chatResume != "" {
		a.Resume(chatResume)
	}

	// Bubbletea leaves the terminal in raw mode if a view panics.
	defer func() {
		if r := recover(); r != nil {
			logger.L().Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("tui panic")
			err = fmt.Errorf("TUI crashed: %v", r)
		}
	}()

	runErr := runProgram(a)
	if id := a.GuestID(); id != "" && id != stored {
		if err := writeGuest(home, id); err != nil {
			logger.Warn("saving guest id: %v", err)
		}
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("TUI error: %w", runErr)
	}
	return nil
}

func listConversations(ctx context.Context, cmd *cobra.Command, guestID string) error {
	if guestID == "" {
		cmd.Println("No conversations yet.")
		return nil
	}
	convs, err := chatService.ListConversations(ctx, guestID)
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}
	if len(convs) == 0 {
		cmd.Println("No conversations yet.")
		return nil
	}

	for i := range convs {
		title := convs[i].Title
		if title == "" {
			title = "(untitled)"
		}
		state := "active"
		if !convs[i].IsActive() {
			state = "ended"
		}
		cmd.Printf("  %s  %s  [%s]\n", convs[i].ID, convs[i].StartedAt.Format("2006-01-02 15:04"), state)
		cmd.Printf("    %s\n", title)
	}
	cmd.Printf("Total: %d conversations\n", len(convs))
	return nil
}

// readGuest returns the stored guest id, or "" when there is none yet.
func readGuest(home string) string {
	data, err := os.ReadFile(filepath.Join(home, guestFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func writeGuest(home, id string) error {
	if err := os.MkdirAll(home, 0o700); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(home, guestFile), []byte(id+"\n"), 0o600)
}
