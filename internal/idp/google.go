// Package idp wraps external identity providers. The rest of the service
// treats a provider as a black box that turns an authorization code into a
// verified profile; it never talks to the provider's endpoints directly.
package idp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const googleIssuer = "https://accounts.google.com"

// Profile is the verified identity a provider yields after the handshake.
type Profile struct {
	Provider string
	Subject  string
	Email    string
	FullName string
	Picture  string
}

// Google performs the OAuth code exchange and ID-token verification against
// Google's OIDC discovery document.
type Google struct {
	verifier *oidc.IDTokenVerifier
	oauth    oauth2.Config
}

// NewGoogle discovers Google's endpoints and prepares the exchange config.
func NewGoogle(ctx context.Context, clientID, clientSecret, redirectURL string) (*Google, error) {
	clientID = strings.TrimSpace(clientID)
	clientSecret = strings.TrimSpace(clientSecret)
	if clientID == "" || clientSecret == "" {
		return nil, errors.New("idp: google client id and secret are required")
	}
	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, fmt.Errorf("idp: discover google: %w", err)
	}
	return &Google{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
		oauth: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
	}, nil
}

// AuthCodeURL returns the consent-screen URL for the given anti-CSRF state.
func (g *Google) AuthCodeURL(state string) string {
	return g.oauth.AuthCodeURL(state)
}

// Exchange redeems an authorization code and returns the verified profile.
// Unverified email addresses are rejected; provisioning keys on email.
func (g *Google) Exchange(ctx context.Context, code string) (Profile, error) {
	token, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return Profile{}, fmt.Errorf("idp: exchange code: %w", err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return Profile{}, errors.New("idp: token response has no id_token")
	}
	idToken, err := g.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return Profile{}, fmt.Errorf("idp: verify id_token: %w", err)
	}
	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return Profile{}, fmt.Errorf("idp: decode claims: %w", err)
	}
	if claims.Email == "" || !claims.EmailVerified {
		return Profile{}, errors.New("idp: google account email is not verified")
	}
	return Profile{
		Provider: "google",
		Subject:  idToken.Subject,
		Email:    claims.Email,
		FullName: claims.Name,
		Picture:  claims.Picture,
	}, nil
}
