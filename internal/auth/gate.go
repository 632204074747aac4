// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Terra Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/terraatlas/terra/pkg/errutil"
)

// GateState is the authentication state of a single request.
type GateState int

// Gate states. A request starts Unauthenticated and ends Authenticated or Rejected.
const (
	StateUnauthenticated GateState = iota
	StateAuthenticating
	StateAuthenticated
	StateRejected
)

func (s GateState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Rejection reasons. These are logged, never returned to clients.
const (
	ReasonTokenAbsent    = "token absent"
	ReasonSessionInvalid = "session invalid or expired"
	ReasonAccountMissing = "account missing"
)

// Identity is the authenticated caller, threaded explicitly through handlers.
type Identity struct {
	AccountID ulid.ULID
	Username  string
	SessionID ulid.ULID
	ExpiresAt time.Time
}

// Decision is the outcome of evaluating one token.
type Decision struct {
	State    GateState
	Identity Identity
	Reason   string
}

// TokenExtractor reads the session token from an inbound request.
type TokenExtractor interface {
	Token(r *http.Request) string
}

// TokenSetter writes or clears the session token on a response.
type TokenSetter interface {
	SetToken(w http.ResponseWriter, token string, expiresAt time.Time)
	ClearToken(w http.ResponseWriter)
}

// SessionResolver is the part of Service the gate depends on.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (*Session, error)
	Logout(ctx context.Context, token string) error
}

// AccountFinder looks up accounts by ID.
type AccountFinder interface {
	GetByID(ctx context.Context, id ulid.ULID) (*Account, error)
}

// Gate authenticates requests by session token.
type Gate struct {
	sessions SessionResolver
	accounts AccountFinder
	logger   *slog.Logger
}

// NewGate creates a Gate. A nil logger uses slog.Default().
func NewGate(sessions SessionResolver, accounts AccountFinder, logger *slog.Logger) (*Gate, error) {
	if sessions == nil {
		return nil, oops.Code("GATE_INVALID_CONFIG").Errorf("session resolver is required")
	}
	if accounts == nil {
		return nil, oops.Code("GATE_INVALID_CONFIG").Errorf("account finder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{sessions: sessions, accounts: accounts, logger: logger}, nil
}

// Evaluate runs the state machine for token. Rejections are reported in the
// Decision; the error is reserved for storage faults.
func (g *Gate) Evaluate(ctx context.Context, token string) (Decision, error) {
	d := Decision{State: StateUnauthenticated}
	if token == "" {
		return d.reject(ReasonTokenAbsent), nil
	}

	d.State = StateAuthenticating
	session, err := g.sessions.ResolveSession(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return d.reject(ReasonSessionInvalid), nil
		}
		return Decision{}, oops.Code("GATE_RESOLVE_FAILED").With("operation", "resolve session").Wrap(err)
	}

	account, err := g.accounts.GetByID(ctx, session.AccountID)
	if err != nil {
		if errutil.IsKind(err, errutil.KindAccountNotFound) {
			// The session outlived its account; drop it so it cannot be replayed.
			if logoutErr := g.sessions.Logout(ctx, token); logoutErr != nil {
				g.logger.WarnContext(ctx, "failed to destroy orphaned session",
					"session_id", session.ID.String(), "error", logoutErr)
			}
			return d.reject(ReasonAccountMissing), nil
		}
		return Decision{}, oops.Code("GATE_ACCOUNT_LOOKUP_FAILED").
			With("operation", "get account by id").
			With("account_id", session.AccountID.String()).
			Wrap(err)
	}

	d.State = StateAuthenticated
	d.Identity = Identity{
		AccountID: account.ID,
		Username:  account.Username,
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt,
	}
	return d, nil
}

func (d Decision) reject(reason string) Decision {
	return Decision{State: StateRejected, Reason: reason}
}

// Authenticate returns the caller's identity, or KindNotAuthenticated for
// every rejection regardless of cause.
func (g *Gate) Authenticate(ctx context.Context, token string) (Identity, error) {
	d, err := g.Evaluate(ctx, token)
	if err != nil {
		return Identity{}, err
	}
	if d.State != StateAuthenticated {
		g.logger.DebugContext(ctx, "request rejected", "state", d.State.String(), "reason", d.Reason)
		return Identity{}, oops.Code("GATE_REJECTED").Wrap(errutil.KindNotAuthenticated)
	}
	return d.Identity, nil
}

type identityKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity stored by WithIdentity.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
