package handlers

import (
  "net/http"
  "github.com/gin-gonic/gin"
  "github.com/connectplus/backend/internal/domain"
)

type APIError struct {
  Message     string	`json:"message"`
  Code	      string	`json:"code,omitempty"`
}

type ErrorEnvelope struct {
  Error	      APIError	`json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
  msg := "unknown error"
  if err != nil {
    msg = err.Error()
  }
  c.JSON(status, ErrorEnvelope{
    Error: APIError{
      Message: msg,
      Code:    code,
    },
  })
}

func RespondOK(c *gin.Context, payload any) {
  c.JSON(http.StatusOK, payload)
}

// RespondDomainError maps engine error codes onto transport status
// codes. Anything without a recognized code is an internal failure.
func RespondDomainError(c *gin.Context, err error) {
  code := domain.CodeOf(err)
  RespondError(c, statusForCode(code), string(code), err)
}

func statusForCode(code domain.Code) int {
  switch code {
  case domain.CodeValidation:
    return http.StatusBadRequest
  case domain.CodeForbidden:
    return http.StatusForbidden
  case domain.CodeNotFound:
    return http.StatusNotFound
  case domain.CodeConflict:
    return http.StatusConflict
  default:
    return http.StatusInternalServerError
  }
}
