// soundtoken issues and inspects the bearer tokens the soundboard server
// accepts. Tokens are handed out out-of-band; the server only verifies.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jeffbot/soundboard/auth"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

func main() {
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:  "soundtoken",
		Usage: "generate and verify soundboard authentication tokens",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "secret",
				Usage:   "token signing secret",
				Sources: cli.EnvVars("JWT_SECRET"),
			},
			&cli.DurationFlag{
				Name:  "ttl",
				Usage: "token lifetime",
				Value: 24 * time.Hour,
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "generate",
				Usage:     "issue a token for a user id",
				ArgsUsage: "<user-id>",
				Action:    runGenerate,
			},
			{
				Name:      "verify",
				Usage:     "verify a token and print its claims",
				ArgsUsage: "<token>",
				Action:    runVerify,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func verifierFrom(cmd *cli.Command) (*auth.Verifier, error) {
	secret := cmd.String("secret")
	if secret == "" {
		return nil, fmt.Errorf("a signing secret is required (--secret or JWT_SECRET)")
	}
	return auth.NewVerifier(secret, cmd.Duration("ttl")), nil
}

func runGenerate(ctx context.Context, cmd *cli.Command) error {
	userID := cmd.Args().First()
	if userID == "" {
		return fmt.Errorf("usage: soundtoken generate <user-id>")
	}

	verifier, err := verifierFrom(cmd)
	if err != nil {
		return err
	}

	token, err := verifier.Issue(userID)
	if err != nil {
		return err
	}

	fmt.Printf("Generated token for user %s:\n%s\n", userID, token)
	fmt.Printf("\nToken expires in %s\n", cmd.Duration("ttl"))

	// Round-trip the token we just issued
	claims, err := verifier.Verify(token)
	if err != nil {
		return fmt.Errorf("issued token failed verification: %w", err)
	}
	fmt.Printf("\nToken validation successful:\n")
	printClaims(claims)
	return nil
}

func runVerify(ctx context.Context, cmd *cli.Command) error {
	token := cmd.Args().First()
	if token == "" {
		return fmt.Errorf("usage: soundtoken verify <token>")
	}

	verifier, err := verifierFrom(cmd)
	if err != nil {
		return err
	}

	claims, err := verifier.Verify(token)
	if err != nil {
		return fmt.Errorf("token is invalid: %w", err)
	}

	fmt.Println("Token is valid:")
	printClaims(claims)
	return nil
}

func printClaims(claims *auth.Claims) {
	fmt.Printf("User ID: %s\n", claims.UserID)
	fmt.Printf("Issued at: %s\n", claims.IssuedAt.Format(time.RFC1123))
	fmt.Printf("Expires at: %s\n", claims.ExpiresAt.Format(time.RFC1123))
}
