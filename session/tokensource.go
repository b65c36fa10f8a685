package session

import (
	"context"
	"time"

	"golang.org/x/oauth2"

	"github.com/rundeklar/go-auth-client/internal/autherrors"
	"github.com/rundeklar/go-auth-client/token"
)

// tokenSourceSlack is how close to expiry the adapter refreshes before
// handing out a token.
const tokenSourceSlack = time.Minute

// TokenSource adapts the managed session to oauth2.TokenSource, for
// libraries that expect one. The returned source refreshes through the
// coordinator's single-flight when the access credential is about to
// expire.
func (s *Service) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &sessionTokenSource{svc: s, ctx: ctx}
}

type sessionTokenSource struct {
	svc *Service
	ctx context.Context
}

func (ts *sessionTokenSource) Token() (*oauth2.Token, error) {
	access := ts.svc.deps.Store.GetAccess()
	if access == "" {
		return nil, autherrors.ErrNotAuthenticated
	}

	if token.ExpiresWithin(access, tokenSourceSlack) {
		if err := ts.svc.deps.Coordinator.Refresh(ts.ctx); err != nil {
			return nil, err
		}
		access = ts.svc.deps.Store.GetAccess()
		if access == "" {
			return nil, autherrors.ErrNotAuthenticated
		}
	}

	expiry, _ := token.Expiry(access)
	return &oauth2.Token{
		AccessToken: access,
		TokenType:   "Bearer",
		Expiry:      expiry,
	}, nil
}
