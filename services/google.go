package services

import (
	"context"
	"fmt"

	"google.golang.org/api/idtoken"
)

type GoogleIdentity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

type GoogleVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (GoogleIdentity, error)
}

// IDTokenVerifier validates Google ID tokens against Google's published
// keys for a single OAuth client id.
type IDTokenVerifier struct {
	clientID string
	validate func(ctx context.Context, token, audience string) (*idtoken.Payload, error)
}

func NewIDTokenVerifier(clientID string) *IDTokenVerifier {
	return &IDTokenVerifier{clientID: clientID, validate: idtoken.Validate}
}

func (v *IDTokenVerifier) Verify(ctx context.Context, raw string) (GoogleIdentity, error) {
	payload, err := v.validate(ctx, raw, v.clientID)
	if err != nil {
		return GoogleIdentity{}, fmt.Errorf("validate google id token: %w", err)
	}
	return identityFromPayload(payload), nil
}

func identityFromPayload(p *idtoken.Payload) GoogleIdentity {
	id := GoogleIdentity{Subject: p.Subject}
	if v, ok := p.Claims["email"].(string); ok {
		id.Email = v
	}
	switch v := p.Claims["email_verified"].(type) {
	case bool:
		id.EmailVerified = v
	case string:
		id.EmailVerified = v == "true"
	}
	if v, ok := p.Claims["name"].(string); ok {
		id.Name = v
	}
	return id
}
