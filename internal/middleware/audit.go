package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// AccessAudit records who touched member data: one entry per protected
// request, including the ones rejected by authentication. It sits in front
// of Authenticate and reads the identity once the chain has run.
func AccessAudit(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := pendingStatus(c)
		outcome := "allowed"
		switch {
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			outcome = "denied"
		case status >= 400:
			outcome = "failed"
		}

		event := logger.Info().
			Str("request_id", c.GetString(ContextRequestID)).
			Str("action", auditAction(c.Request.Method)).
			Str("resource", c.FullPath()).
			Int("status", status).
			Str("outcome", outcome).
			Str("client_ip", c.ClientIP())

		if identity, ok := IdentityFrom(c); ok {
			event = event.
				Str("provider_id", identity.ProviderID).
				Str("subject", identity.Subject).
				Str("scheme", string(identity.Scheme))
		}

		event.Msg("access")
	}
}

func auditAction(method string) string {
	switch method {
	case http.MethodPost:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// pendingStatus is the status the response will carry. Errors are rendered
// by ErrorHandler further up the chain, so they may not be written yet.
func pendingStatus(c *gin.Context) int {
	if !c.Writer.Written() && len(c.Errors) > 0 {
		status, _ := classify(c.Errors.Last().Err)
		return status
	}
	return c.Writer.Status()
}
