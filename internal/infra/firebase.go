// README: Firebase ID token verification; a signed-in user's uid doubles as their conversation id.
package infra

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// FirebaseToken is what the HTTP layer keeps from a verified ID token.
type FirebaseToken struct {
	UID    string
	Name   string
	Claims map[string]interface{}
}

type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*FirebaseToken, error)
}

type FirebaseConfig struct {
	ProjectID string
	// CredentialsFile is a service-account JSON path; empty means application-default credentials.
	CredentialsFile string
	// CheckRevoked also rejects tokens revoked after issue, at the cost of a round-trip per request.
	CheckRevoked bool
}

type firebaseVerifier struct {
	client       *auth.Client
	checkRevoked bool
}

// NewFirebaseVerifier connects to Firebase Auth for cfg.ProjectID.
// FIREBASE_AUTH_EMULATOR_HOST is picked up by the SDK.
func NewFirebaseVerifier(ctx context.Context, cfg FirebaseConfig) (TokenVerifier, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firebase: project id is required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase: new app for %s: %w", cfg.ProjectID, err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase: auth client: %w", err)
	}
	return &firebaseVerifier{client: client, checkRevoked: cfg.CheckRevoked}, nil
}

func (v *firebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*FirebaseToken, error) {
	verify := v.client.VerifyIDToken
	if v.checkRevoked {
		verify = v.client.VerifyIDTokenAndCheckRevoked
	}
	token, err := verify(ctx, idToken)
	if err != nil {
		return nil, err
	}
	return tokenFromAuth(token), nil
}

// tokenFromAuth picks the display name from the name claim, falling back to email.
func tokenFromAuth(t *auth.Token) *FirebaseToken {
	name, _ := t.Claims["name"].(string)
	if name == "" {
		name, _ = t.Claims["email"].(string)
	}
	return &FirebaseToken{UID: t.UID, Name: name, Claims: t.Claims}
}
