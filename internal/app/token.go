package app

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"horse.fit/winnow/internal/auth"
)

func runToken(args []string) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	token, err := auth.GenerateToken()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to generate token: %v\n", err)
		return 1
	}

	hash, err := auth.HashToken(token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to hash token: %v\n", err)
		return 1
	}

	fmt.Printf("Token:          %s\n", token)
	fmt.Printf("API_TOKEN_HASH: %s\n", hash)
	fmt.Println()
	fmt.Println("Hand the token to API clients; store only the hash in the environment.")
	return 0
}
