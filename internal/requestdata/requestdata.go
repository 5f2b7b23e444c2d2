package requestdata

import (
  "context"
  "github.com/google/uuid"
  "github.com/connectplus/backend/internal/domain"
)

var requestDataKey = struct{}{}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
  return context.WithValue(ctx, requestDataKey, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
  val := ctx.Value(requestDataKey)
  if rd, ok := val.(*RequestData); ok {
    return rd
  }
  return nil
}

// RequestData is the resolved caller identity the engine consumes.
// GlobalOverride marks a super-admin equivalent that bypasses tenant
// isolation and step role gating.
type RequestData struct {
  TokenString       string
  UserID            uuid.UUID
  OrganizationID    uuid.UUID
  Roles             []domain.Role
  GlobalOverride    bool
}

func (rd *RequestData) HasRole(role domain.Role) bool {
  if rd == nil {
    return false
  }
  for _, r := range rd.Roles {
    if r == role {
      return true
    }
  }
  return false
}
