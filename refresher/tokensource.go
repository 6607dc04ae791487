package refresher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// tokenSourceLeeway refreshes slightly ahead of expiry so a returned token
// survives request processing time.
const tokenSourceLeeway = time.Minute

// TokenSource exposes one connection's stored credential as an
// oauth2.TokenSource for API-layer callers. Tokens at or past the leeway
// trigger an on-demand refresh before being returned.
func (s *Scheduler) TokenSource(ctx context.Context, connectionID string) oauth2.TokenSource {
	return &connectionTokenSource{ctx: ctx, scheduler: s, connectionID: connectionID}
}

type connectionTokenSource struct {
	ctx          context.Context
	scheduler    *Scheduler
	connectionID string
}

// Token implements oauth2.TokenSource.
func (t *connectionTokenSource) Token() (*oauth2.Token, error) {
	cred, _, err := t.scheduler.secrets.Read(t.ctx, t.connectionID)
	if err != nil {
		return nil, err
	}
	if time.Until(cred.ExpiresAt) > tokenSourceLeeway {
		return &oauth2.Token{
			AccessToken:  cred.AccessToken,
			TokenType:    cred.TokenType,
			RefreshToken: cred.RefreshToken,
			Expiry:       cred.ExpiresAt,
		}, nil
	}

	outcome, err := t.scheduler.RefreshNow(t.ctx, t.connectionID)
	switch {
	case errors.Is(err, ErrRefreshInFlight):
		// Another caller or the poll loop is already renewing it; serve
		// whatever is stored.
	case err != nil:
		return nil, err
	case outcome != OutcomeSucceeded && outcome != OutcomeSkippedConflict:
		return nil, fmt.Errorf("refresh outcome %s", outcome)
	}

	cred, _, err = t.scheduler.secrets.Read(t.ctx, t.connectionID)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken:  cred.AccessToken,
		TokenType:    cred.TokenType,
		RefreshToken: cred.RefreshToken,
		Expiry:       cred.ExpiresAt,
	}, nil
}
