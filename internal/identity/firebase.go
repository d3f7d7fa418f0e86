package identity

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/auth"
	"google.golang.org/api/option"
)

// TokenVerifier checks Firebase ID tokens; *auth.Client implements it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// FirebaseProvider identifies the player by a Firebase ID token, the same
// uid the mobile clients use in room slots.
type FirebaseProvider struct {
	verifier TokenVerifier
	token    string
}

// NewFirebaseVerifier initialises a Firebase app and returns its Auth client.
func NewFirebaseVerifier(ctx context.Context, projectID, credentialsFile string) (*auth.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("identity: error initializing app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("identity: error getting Auth client: %w", err)
	}
	return client, nil
}

// NewFirebaseProvider creates a provider for one ID token.
func NewFirebaseProvider(verifier TokenVerifier, idToken string) *FirebaseProvider {
	return &FirebaseProvider{verifier: verifier, token: idToken}
}

// Current verifies the token and returns its uid.
func (p *FirebaseProvider) Current(ctx context.Context) (Identity, error) {
	if p.token == "" {
		return Identity{}, ErrNoIdentity
	}
	tok, err := p.verifier.VerifyIDToken(ctx, p.token)
	if err != nil {
		return Identity{}, fmt.Errorf("identity: error verifying token: %w", err)
	}
	name, _ := tok.Claims["name"].(string)
	return Identity{ID: tok.UID, DisplayName: nameOr(name)}, nil
}
