package handlers

import (
	"net/http"

	"github.com/wolfman30/creditsales-ai-platform/internal/http/middleware"
)

func adminSubject(r *http.Request) string {
	if claims, ok := middleware.AdminClaimsFromContext(r.Context()); ok {
		return claims.Subject
	}
	return ""
}
