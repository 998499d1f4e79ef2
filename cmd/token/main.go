// Command token mints an access token for an identity using the server's
// symmetric key. Identities are opaque to the settlement service, so any
// UUID may be used.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/joefazee/parimutuel/app"
	"github.com/joefazee/parimutuel/internal/security"
)

func main() {
	identity := flag.String("identity", "", "identity to mint the token for (random when empty)")
	duration := flag.Duration("duration", 0, "token lifetime (defaults to AUTH_TOKEN_DURATION)")
	flag.Parse()

	if err := run(*identity, *duration); err != nil {
		fmt.Fprintln(os.Stderr, "token:", err)
		os.Exit(1)
	}
}

func run(rawIdentity string, duration time.Duration) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}

	id := uuid.New()
	if rawIdentity != "" {
		if id, err = uuid.Parse(rawIdentity); err != nil {
			return fmt.Errorf("invalid identity: %w", err)
		}
	}
	if duration <= 0 {
		duration = cfg.Auth.TokenDuration
	}

	maker, err := security.NewPasetoMaker(cfg.Auth.SymmetricKey)
	if err != nil {
		return err
	}
	token, payload, err := maker.CreateToken(id, duration, security.TokenScopeAccess)
	if err != nil {
		return err
	}

	fmt.Printf("identity: %s\nexpires:  %s\ntoken:    %s\n", payload.Identity, payload.ExpiredAt.Format(time.RFC3339), token)
	return nil
}
