package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/moments-social/moments-backend/internal/composer"
	"github.com/moments-social/moments-backend/internal/domain"
)

var feedPages int

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Browse the published feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()
		store := composer.NewFeedStore(client)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		for page := 0; page < feedPages; page++ {
			posts, err := store.Fetch(ctx, false)
			if err != nil {
				return err
			}
			if page == feedPages-1 || !store.HasMore() {
				printFeed(posts)
				break
			}
		}
		if store.HasMore() {
			fmt.Println("... more posts available, rerun with a larger --pages")
		}
		return nil
	},
}

func init() {
	feedCmd.Flags().IntVar(&feedPages, "pages", 1, "Number of pages to load")
}

func printFeed(posts []domain.Post) {
	if len(posts) == 0 {
		fmt.Println("The feed is empty.")
		return
	}
	for _, p := range posts {
		author := "unknown"
		if p.User != nil {
			author = p.User.Username
		}
		fmt.Printf("#%d  %s  %s\n", p.ID, author, p.CreatedAt.Format("2006-01-02 15:04"))
		fmt.Printf("    %s\n", excerpt(p.Content, 120))
		if len(p.Tags) > 0 {
			fmt.Printf("    tags: %s\n", strings.Join(p.Tags, ", "))
		}
		if len(p.Images) > 0 {
			fmt.Printf("    images: %d\n", len(p.Images))
		}
	}
}

func excerpt(html string, max int) string {
	text := strings.TrimSpace(composer.PlainText(html))
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
