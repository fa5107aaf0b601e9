package google

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	googleauth "golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// MailScope is the OAuth2 scope the Gmail adapter requires. Permanent
// delete needs the full mail scope, not gmail.modify.
const MailScope = "https://mail.google.com/"

// NewGmailService creates a Gmail API service using the provided TokenSource.
func NewGmailService(ctx context.Context, ts oauth2.TokenSource) (*gmail.Service, error) {
	return gmail.NewService(ctx, option.WithTokenSource(ts))
}

// TokenSource builds a self-refreshing token source from an OAuth client
// secrets file and a cached token file. Token acquisition (the browser
// consent flow that produces the token file) is owned by external tooling.
func TokenSource(ctx context.Context, secretsFile, tokenFile string) (oauth2.TokenSource, error) {
	secrets, err := os.ReadFile(secretsFile)
	if err != nil {
		return nil, fmt.Errorf("reading client secrets: %w", err)
	}
	cfg, err := googleauth.ConfigFromJSON(secrets, MailScope)
	if err != nil {
		return nil, fmt.Errorf("parsing client secrets: %w", err)
	}

	tok, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, err
	}
	return cfg.TokenSource(ctx, tok), nil
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parsing token %s: %w", path, err)
	}
	return &tok, nil
}
