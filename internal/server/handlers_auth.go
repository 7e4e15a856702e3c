package server

import (
	"net/http"

	"github.com/jonathan/resume-render-api/internal/types"
)

// handleAuthenticate exchanges the extension's client secret for a JWT.
func (s *Server) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req types.AuthenticateRequest
	if err := s.decodeJSON(w, r, &req); err != nil || req.Validate() != nil {
		s.failResponse(w, r, &ErrValidation{Field: "client_secret", Message: "Missing client_secret in request"})
		return
	}

	if !s.auth.VerifyClientSecret(req.ClientSecret) {
		// The submitted secret is never logged.
		s.logger.Warn("authentication attempt with invalid client secret", "client", s.extractClientID(r))
		s.failResponse(w, r, &ErrInvalidCredentials{})
		return
	}

	token, err := s.jwtService.GenerateToken(ExtensionSubject)
	if err != nil {
		s.failResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, types.TokenResponse{Token: token})
}
