package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var loginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Log in and print an auth token",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reader := bufio.NewReader(os.Stdin)

		var username string
		if len(args) == 1 {
			username = args[0]
		} else {
			fmt.Print("Username: ")
			line, err := reader.ReadString('\n')
			if err != nil {
				return err
			}
			username = strings.TrimSpace(line)
		}

		fmt.Print("Password: ")
		passBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		client := newClient()
		user, err := client.Login(ctx, username, string(passBytes))
		if err != nil {
			return err
		}

		fmt.Printf("Logged in as %s (id %d)\n", user.Username, user.ID)
		fmt.Printf("export MOMENTS_TOKEN=%s\n", client.Token())
		return nil
	},
}
