package bitrix

import (
	"context"
	"errors"
	"fmt"
	"time"

	"zpbitrix/internal/ports"
	"zpbitrix/platform/logger"

	"golang.org/x/oauth2"
)

// DefaultOAuthURL is Bitrix24's shared OAuth server. Every portal, regardless
// of its own domain, issues and refreshes tokens there.
const DefaultOAuthURL = "https://oauth.bitrix.info"

// OAuthGateway implements ports.OAuthGateway against the Bitrix24 OAuth
// server using the standard authorization-code flow.
type OAuthGateway struct {
	config *oauth2.Config
	logger *logger.Logger
}

// NewOAuthGateway creates the gateway. oauthURL falls back to the shared
// Bitrix24 OAuth server when empty.
func NewOAuthGateway(clientID, clientSecret, oauthURL string, logger *logger.Logger) *OAuthGateway {
	if oauthURL == "" {
		oauthURL = DefaultOAuthURL
	}
	return &OAuthGateway{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   oauthURL + "/oauth/authorize/",
				TokenURL:  oauthURL + "/oauth/token/",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		logger: logger,
	}
}

// Exchange swaps an authorization code for a token set
func (g *OAuthGateway) Exchange(ctx context.Context, code string) (*ports.OAuthTokens, error) {
	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, g.wrapOAuthError("exchange", err)
	}
	return g.toTokens(token), nil
}

// Refresh runs the refresh-token grant
func (g *OAuthGateway) Refresh(ctx context.Context, refreshToken string) (*ports.OAuthTokens, error) {
	source := g.config.TokenSource(ctx, &oauth2.Token{
		RefreshToken: refreshToken,
		// Force the refresh grant: an unset expiry would mark the (empty)
		// access token as still valid.
		Expiry: time.Now().Add(-time.Minute),
	})
	token, err := source.Token()
	if err != nil {
		return nil, g.wrapOAuthError("refresh", err)
	}
	return g.toTokens(token), nil
}

// toTokens maps the oauth2 token plus Bitrix's extra fields into our shape.
// Bitrix echoes member_id and domain alongside the standard fields.
func (g *OAuthGateway) toTokens(token *oauth2.Token) *ports.OAuthTokens {
	out := &ports.OAuthTokens{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}
	if v, ok := token.Extra("member_id").(string); ok {
		out.MemberID = v
	}
	if v, ok := token.Extra("domain").(string); ok {
		out.Domain = v
	}
	return out
}

// wrapOAuthError converts oauth2 failures into portal errors so the token
// manager can tell a rejected grant from a network hiccup.
func (g *OAuthGateway) wrapOAuthError(op string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		g.logger.WarnWithFields("OAuth server rejected the grant", map[string]interface{}{
			"operation": op,
			"code":      re.ErrorCode,
		})
		code := re.ErrorCode
		if code == "" {
			code = ports.PortalErrInvalidGrant
		}
		return &ports.PortalError{
			Code:        code,
			Description: re.ErrorDescription,
			HTTPStatus:  re.Response.StatusCode,
		}
	}
	return fmt.Errorf("oauth %s failed: %w", op, err)
}
