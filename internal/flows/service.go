package flows

import (
	"context"

	"github.com/MrEthical07/invauth/jwt"
)

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Validate.ParseAccess != nil
}

func (s Service) Validate(ctx context.Context, tokenStr string) ValidateResult {
	return RunValidate(ctx, tokenStr, s.deps.Validate)
}

func (s Service) Login(ctx context.Context, email, password, origin string) LoginResult {
	return RunLogin(ctx, email, password, origin, s.deps.Login)
}

func (s Service) Refresh(ctx context.Context, secret, origin string) RefreshResult {
	return RunRefresh(ctx, secret, origin, s.deps.Refresh)
}

func (s Service) Logout(ctx context.Context, claims *jwt.AccessClaims, refreshSecret string) LogoutResult {
	return RunLogout(ctx, claims, refreshSecret, s.deps.Logout)
}

func (s Service) RevokeUser(ctx context.Context, userID int64, reason string) AdminResult {
	return RunRevokeUser(ctx, userID, reason, s.deps.Admin)
}

func (s Service) RevokeTenant(ctx context.Context, tenantID int64, reason string) AdminResult {
	return RunRevokeTenant(ctx, tenantID, reason, s.deps.Admin)
}

func (s Service) Introspect(ctx context.Context, claims *jwt.AccessClaims) (IntrospectResult, error) {
	return RunIntrospect(ctx, claims, s.deps.Introspect)
}
