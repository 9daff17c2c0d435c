package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/wolfeidau/certsign/internal/auth"
)

type TokenCmd struct {
	UserID     int64         `help:"user id the token authenticates" required:""`
	Username   string        `help:"display name carried in the token"`
	TTL        time.Duration `help:"Token lifetime" default:"24h"`
	SigningKey string        `help:"PEM encoded ES256 private key" required:"" env:"CERTSIGN_AUTH_SIGNING_KEY"`
}

func (t *TokenCmd) Run(ctx context.Context) error {
	token, err := auth.IssueToken(t.SigningKey, t.UserID, t.Username, t.TTL)
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}

type KeysCmd struct {
	Out string `help:"write the private key to this file and print only the public key" type:"path"`
}

func (k *KeysCmd) Run(ctx context.Context) error {
	priv, pub, err := auth.GenerateKeyPair()
	if err != nil {
		return err
	}

	if k.Out == "" {
		fmt.Print(priv)
		fmt.Print(pub)
		return nil
	}

	if err := os.WriteFile(k.Out, []byte(priv), 0o600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}
	fmt.Print(pub)
	return nil
}
