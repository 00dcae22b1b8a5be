// ABOUTME: Maintenance CLI for the aichat conversation database
// ABOUTME: Lists, inspects, and purges conversations directly against the SQLite store

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/lantern-browser/aichat/internal/config"
	"github.com/lantern-browser/aichat/internal/store"
)

const banner = `
       _      _           _       _   _
  __ _(_) ___| |__   __ _| |_ ___| |_| |
 / _' | |/ __| '_ \ / _' | __/ __| __| |
| (_| | | (__| | | | (_| | || (__| |_| |
 \__,_|_|\___|_| |_|\__,_|\__\___|\__|_|
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "list", "ls":
		err = cmdList(args)
	case "show":
		err = cmdShow(args)
	case "delete", "rm":
		err = cmdDelete(args)
	case "skills":
		err = cmdSkills(args)
	case "purge":
		err = cmdPurge(args)
	case "purge-content":
		err = cmdPurgeContent(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: aichatctl <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  list                      List stored conversations")
	fmt.Println("  show <uuid>               Show a conversation's turns and content")
	fmt.Println("  delete <uuid>             Delete one conversation")
	fmt.Println("  skills                    List stored skills")
	fmt.Println("  purge [--since <d>]       Delete conversations (optionally only recent ones)")
	fmt.Println("  purge-content [--since <d>]  Delete associated web content, keep turns")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  AICHAT_CONFIG    Config file path (database.path is read from it)")
	fmt.Println("  AICHAT_DB        Database path (overrides config)")
	fmt.Println("  AICHAT_KEY       Encryption key material (required)")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  export AICHAT_KEY=\"...\"")
	fmt.Println("  aichatctl list")
	fmt.Println("  aichatctl purge --since 24h")
	fmt.Println("  aichatctl purge-content --since 1h")
	fmt.Println()
}

// openStore opens the SQLite store using AICHAT_DB / AICHAT_CONFIG and
// AICHAT_KEY. The CLI talks to the blocking store directly; there is no
// service to queue behind.
func openStore() (*store.SQLiteStore, error) {
	key := os.Getenv("AICHAT_KEY")
	if key == "" {
		return nil, fmt.Errorf("AICHAT_KEY environment variable is required")
	}

	dbPath := os.Getenv("AICHAT_DB")
	if dbPath == "" {
		if cfgPath := os.Getenv("AICHAT_CONFIG"); cfgPath != "" {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return nil, fmt.Errorf("loading config: %w", err)
			}
			dbPath = cfg.Database.Path
		}
	}
	if dbPath == "" {
		configDir := os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("could not determine config directory: %w", err)
			}
			configDir = filepath.Join(homeDir, ".config")
		}
		dbPath = filepath.Join(configDir, "aichat", "conversations.db")
	}

	enc, err := store.NewEncryptor([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("deriving storage key: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return store.NewSQLiteStore(dbPath, enc, logger)
}

// cmdList lists all stored conversations
func cmdList(args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	convs, err := db.LoadAll(context.Background())
	if err != nil {
		return fmt.Errorf("loading conversations: %w", err)
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Conversations")
	cyan.Println("  -------------")

	if len(convs) == 0 {
		fmt.Println("  (no conversations)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  UUID\tTITLE\tMODEL\tTOKENS\tCONTENT\tUPDATED")
	fmt.Fprintln(w, "  ----\t-----\t-----\t------\t-------\t-------")

	for _, c := range convs {
		hasContent := ""
		if c.HasContent {
			hasContent = "yes"
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%d\t%s\t%s\n",
			truncate(c.UUID, 12),
			truncate(c.Title, 32),
			c.ModelKey,
			c.TotalTokens,
			hasContent,
			c.UpdatedAt.Format("Jan 02 15:04"))
	}
	w.Flush()
	fmt.Println()

	return nil
}

// cmdShow prints one conversation's turn history and associated content
func cmdShow(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: show <conversation-uuid>")
	}
	uuid := args[0]

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	archive, err := db.LoadArchive(context.Background(), uuid)
	if err != nil {
		return fmt.Errorf("loading conversation: %w", err)
	}

	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	dim := color.New(color.Faint)

	fmt.Println()
	if len(archive.Contents) > 0 {
		cyan.Println("  Associated content:")
		for _, c := range archive.Contents {
			fmt.Printf("    %s  %s\n", c.Title, dim.Sprint(c.URL))
		}
		fmt.Println()
	}

	if len(archive.Entries) == 0 {
		fmt.Println("  (no entries)")
		fmt.Println()
		return nil
	}

	for _, e := range archive.Entries {
		switch e.Role {
		case store.RoleHuman:
			green.Printf("  > %s\n", e.Text)
		default:
			fmt.Printf("  %s\n", indent(e.Text, "  "))
		}
		fmt.Println()
	}

	return nil
}

// cmdDelete removes one conversation and its data
func cmdDelete(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: delete <conversation-uuid>")
	}
	uuid := args[0]

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Delete(context.Background(), uuid); err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Deleted conversation: %s\n", uuid)
	return nil
}

// cmdSkills lists all stored skills
func cmdSkills(args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	skills, err := db.ListSkills(context.Background())
	if err != nil {
		return fmt.Errorf("listing skills: %w", err)
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Skills")
	cyan.Println("  ------")

	if len(skills) == 0 {
		fmt.Println("  (no skills)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tSHORTCUT\tMODEL\tPROMPT")
	fmt.Fprintln(w, "  --\t--------\t-----\t------")
	for _, s := range skills {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n",
			truncate(s.ID, 12), s.Shortcut, s.ModelKey, truncate(s.Prompt, 40))
	}
	w.Flush()
	fmt.Println()

	return nil
}

// cmdPurge deletes conversations, optionally only those updated within a
// recent window (--since 24h)
func cmdPurge(args []string) error {
	begin, err := parseSince(args)
	if err != nil {
		return err
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.DeleteAllInRange(context.Background(), begin, time.Time{}); err != nil {
		return fmt.Errorf("purging conversations: %w", err)
	}

	green := color.New(color.FgGreen)
	if begin.IsZero() {
		green.Println("✓ Deleted all conversations")
	} else {
		green.Printf("✓ Deleted conversations updated since %s\n", begin.Format(time.RFC3339))
	}
	return nil
}

// cmdPurgeContent deletes associated web content while keeping turn text
func cmdPurgeContent(args []string) error {
	begin, err := parseSince(args)
	if err != nil {
		return err
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.DeleteContentInRange(context.Background(), begin, time.Time{}); err != nil {
		return fmt.Errorf("purging content: %w", err)
	}

	green := color.New(color.FgGreen)
	if begin.IsZero() {
		green.Println("✓ Deleted all associated web content")
	} else {
		green.Printf("✓ Deleted web content recorded since %s\n", begin.Format(time.RFC3339))
	}
	return nil
}

// parseSince extracts an optional --since duration; the returned time is the
// lower bound of the deletion range (zero means unbounded).
func parseSince(args []string) (time.Time, error) {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--since", "-s":
			if i+1 >= len(args) {
				return time.Time{}, fmt.Errorf("--since requires a duration (e.g. 24h)")
			}
			d, err := time.ParseDuration(args[i+1])
			if err != nil {
				return time.Time{}, fmt.Errorf("invalid duration %q: %w", args[i+1], err)
			}
			return time.Now().Add(-d), nil
		}
	}
	return time.Time{}, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func indent(s, prefix string) string {
	return strings.ReplaceAll(s, "\n", "\n"+prefix)
}
