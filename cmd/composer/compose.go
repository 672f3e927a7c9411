package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/moments-social/moments-backend/internal/composer"
)

var (
	composeEditID  uint
	composeTopic   string
	composeOffline bool
)

var composeCmd = &cobra.Command{
	Use:   "compose",
	Short: "Open an interactive composer session",
	Long: `Open an interactive composer session. Typed lines become paragraphs;
commands start with a colon:

  :img <url>      attach an uploaded image URL
  :tag <name>     add a tag
  :tags a,b,c     replace the tag set
  :suggest        ask the AI for topic suggestions
  :show           print the current draft
  :status         print the autosave status
  :sync           force a cloud sync now
  :online/:offline  toggle simulated connectivity
  :clear          clear the draft (reset to original in edit mode)
  :publish        publish and exit
  :quit           exit without publishing`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireToken(); err != nil {
			return err
		}
		return runCompose(cmd)
	},
}

func init() {
	composeCmd.Flags().UintVar(&composeEditID, "edit", 0, "Edit an existing post by id")
	composeCmd.Flags().StringVar(&composeTopic, "topic", "", "Seed the tag set with a topic")
	composeCmd.Flags().BoolVar(&composeOffline, "offline", false, "Start in offline mode")
}

func runCompose(cmd *cobra.Command) error {
	client := newClient()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	me, err := client.Me(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("auth check failed: %w", err)
	}

	store, err := composer.NewFileStore(stateDir)
	if err != nil {
		return err
	}

	monitor := composer.NewFlagMonitor(!composeOffline)
	feed := composer.NewFeedStore(client)

	mode := composer.ModeNew
	if composeEditID != 0 {
		mode = composer.ModeEdit
	}

	session := composer.NewSession(store, client, monitor, composer.SessionOptions{
		UserID: me.ID,
		Mode:   mode,
		PostID: composeEditID,
		Topic:  composeTopic,
		Author: me.AuthorView(),
		Confirm: func(message string) bool {
			fmt.Printf("%s [y/N] ", message)
			reader := bufio.NewReader(os.Stdin)
			line, _ := reader.ReadString('\n')
			answer := strings.ToLower(strings.TrimSpace(line))
			return answer == "y" || answer == "yes"
		},
		OnStatus: func(status string) {
			fmt.Printf("  [%s]\n", status)
		},
	})
	session.SetFeed(feed)
	defer session.Close()

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = session.Start(startCtx)
	cancel()
	if err != nil {
		return err
	}

	fmt.Printf("Composer ready (%s mode). Type :help for commands.\n", mode)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, ":") {
			draft := session.Draft()
			session.SetContent(draft.Content + "<p>" + line + "</p>")
			continue
		}

		name, arg, _ := strings.Cut(line[1:], " ")
		arg = strings.TrimSpace(arg)
		switch name {
		case "help":
			fmt.Println(cmd.Long)
		case "img":
			if arg == "" {
				fmt.Println("usage: :img <url>")
				continue
			}
			draft := session.Draft()
			session.SetImages(append(draft.Images, arg))
		case "tag":
			if arg == "" {
				fmt.Println("usage: :tag <name>")
				continue
			}
			session.AddTag(arg)
		case "tags":
			var tags []string
			for _, t := range strings.Split(arg, ",") {
				if t = strings.TrimSpace(t); t != "" {
					tags = append(tags, t)
				}
			}
			session.SetTags(tags)
		case "suggest":
			draft := session.Draft()
			sctx, scancel := context.WithTimeout(context.Background(), 60*time.Second)
			topics, err := client.SuggestTopics(sctx, draft.Content, draft.Images)
			scancel()
			if err != nil {
				fmt.Printf("suggestion failed: %v\n", err)
				continue
			}
			if len(topics) == 0 {
				fmt.Println("no suggestions")
				continue
			}
			fmt.Printf("suggested topics: %s\n", strings.Join(topics, ", "))
		case "show":
			printDraft(session.Draft())
		case "status":
			fmt.Println(session.Status())
		case "sync":
			session.SyncNow()
		case "online":
			monitor.SetOnline(true)
		case "offline":
			monitor.SetOnline(false)
			fmt.Println("  [离线状态]")
		case "clear":
			cctx, ccancel := context.WithTimeout(context.Background(), 30*time.Second)
			session.Clear(cctx)
			ccancel()
		case "publish":
			pctx, pcancel := context.WithTimeout(context.Background(), 60*time.Second)
			post, err := session.Submit(pctx)
			pcancel()
			if err != nil {
				fmt.Printf("publish failed: %v\n", err)
				continue
			}
			fmt.Printf("published post #%d\n", post.ID)
			return nil
		case "quit", "q", "exit":
			return nil
		default:
			fmt.Printf("unknown command :%s\n", name)
		}
	}
}

func printDraft(d composer.Draft) {
	fmt.Printf("draft id: %d\n", d.ID)
	fmt.Printf("content:\n%s\n", d.Content)
	if len(d.Images) > 0 {
		fmt.Printf("images:\n  %s\n", strings.Join(d.Images, "\n  "))
	}
	if len(d.Tags) > 0 {
		fmt.Printf("tags: %s\n", strings.Join(d.Tags, ", "))
	}
	if !d.UpdatedAt.IsZero() {
		fmt.Printf("updated: %s\n", d.UpdatedAt.Format(time.RFC3339))
	}
}
