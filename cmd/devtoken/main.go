// Command devtoken mints an access token for local testing of the API.
//
//	devtoken --sub alice
//	devtoken --sub ops --role ADMIN --ttl 2h
//
// The signing secret is read from JWT_SECRET (a .env file is honoured).
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/iliyamo/fair-ticketing/internal/utils"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	_ = godotenv.Load()

	var (
		sub  string
		role string
		ttl  time.Duration
	)
	flags := pflag.NewFlagSet("devtoken", pflag.ContinueOnError)
	flags.StringVar(&sub, "sub", "", "user id placed in the sub claim (required)")
	flags.StringVar(&role, "role", utils.RoleUser, "role claim: USER or ADMIN")
	flags.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if sub == "" {
		return fmt.Errorf("--sub is required")
	}
	if role != utils.RoleUser && role != utils.RoleAdmin {
		return fmt.Errorf("unknown role %q", role)
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return fmt.Errorf("JWT_SECRET is not set")
	}

	tok, err := utils.NewAccessToken(secret, sub, role, ttl)
	if err != nil {
		return err
	}
	fmt.Println(tok.Token)
	fmt.Fprintf(os.Stderr, "expires %s\n", tok.Exp.Format(time.RFC3339))
	return nil
}
