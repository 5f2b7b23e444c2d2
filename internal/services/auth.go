package services

import (
  "context"
  "fmt"
  "github.com/golang-jwt/jwt/v5"
  "github.com/google/uuid"
  "github.com/connectplus/backend/internal/domain"
  "github.com/connectplus/backend/internal/logger"
  "github.com/connectplus/backend/internal/requestdata"
)

// AuthService is the authorization adapter: it resolves the caller's
// identity, organization, role set and global-override flag from an
// access token issued by the external identity provider. Issuing,
// refreshing and revoking tokens is that provider's job, not ours.
type AuthService interface {
  SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
}

type JWTClaims struct {
  jwt.RegisteredClaims
  OrganizationID  string    `json:"org"`
  Roles           []string  `json:"roles"`
  GlobalOverride  bool      `json:"global_override"`
}

type authService struct {
  log           *logger.Logger
  jwtSecretKey  string
}

func NewAuthService(baseLog *logger.Logger, jwtSecretKey string) AuthService {
  serviceLog := baseLog.With("service", "AuthService")
  return &authService{log: serviceLog, jwtSecretKey: jwtSecretKey}
}

func (as *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
  if tokenString == "" {
    return ctx, nil
  }
  parsedToken, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
    return []byte(as.jwtSecretKey), nil
  })
  if err != nil {
    return ctx, fmt.Errorf("Failed to parse token: %w", err)
  }
  claims, ok := parsedToken.Claims.(*JWTClaims)
  if !ok || !parsedToken.Valid {
    return ctx, fmt.Errorf("Invalid or expired JWT token")
  }
  userID, err := uuid.Parse(claims.Subject)
  if err != nil {
    return ctx, fmt.Errorf("Invalid user id in token: %w", err)
  }
  var organizationID uuid.UUID
  if claims.OrganizationID != "" {
    organizationID, err = uuid.Parse(claims.OrganizationID)
    if err != nil {
      return ctx, fmt.Errorf("Invalid organization id in token: %w", err)
    }
  }
  if organizationID == uuid.Nil && !claims.GlobalOverride {
    return ctx, fmt.Errorf("Token carries neither an organization nor a global override")
  }

  roles := make([]domain.Role, 0, len(claims.Roles))
  for _, raw := range claims.Roles {
    role, ok := domain.ParseRole(raw)
    if !ok {
      as.log.Warn("Dropping undeclared role from token", "role", raw, "user_id", userID)
      continue
    }
    roles = append(roles, role)
  }

  rd := &requestdata.RequestData{
    TokenString:    tokenString,
    UserID:         userID,
    OrganizationID: organizationID,
    Roles:          roles,
    GlobalOverride: claims.GlobalOverride,
  }
  return requestdata.WithRequestData(ctx, rd), nil
}
