// Package cli implements the filegate client commands.
package cli

import (
	"errors"
	"fmt"
	"syscall"

	"filegate/internal/client"
	"filegate/internal/server/auth"

	"golang.org/x/term"
)

func readSecret(prompt string) (string, error) {
	fmt.Print(prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println() // move to next line after input
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Login verifies a token against the server and stores it locally.
// A non-empty server also becomes the default base URL.
func Login(server string) error {
	if client.ReadToken() != "" {
		fmt.Println("You are already logged in. Logout first to use a different token.")
		return nil
	}
	if server != "" {
		if err := client.WriteBaseURL(server); err != nil {
			return err
		}
	}

	token, err := readSecret("Token: ")
	if err != nil {
		return err
	}
	if token == "" {
		return errors.New("empty token")
	}

	account, err := client.Me(token)
	if err != nil {
		return err
	}
	if err := client.WriteToken(token); err != nil {
		return err
	}
	fmt.Printf("Logged in to %s as %s (%s).\n", client.BaseURL, account.Name, account.Role)
	return nil
}

// Logout forgets the stored token.
func Logout() error {
	if err := client.RemoveToken(); err != nil {
		return err
	}
	fmt.Println("Logout successful.")
	return nil
}

// HashToken prompts for a token twice and prints its bcrypt hash for the
// principals file.
func HashToken() error {
	token, err := readSecret("Token: ")
	if err != nil {
		return err
	}
	confirm, err := readSecret("Confirm token: ")
	if err != nil {
		return err
	}
	if token != confirm {
		return errors.New("tokens do not match")
	}

	hash, err := auth.HashToken(token)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}
