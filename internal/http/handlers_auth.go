package http

import (
	"net/http"

	applog "despesas/internal/log"
)

const loginMessage = "Login realizado com sucesso! Use o token para criar, atualizar e excluir despesas."

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, err := parseLogin(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		applog.FromContext(r.Context()).WithComponent(applog.ComponentAuth).WarnContext(r.Context(),
			"Login failed", applog.FieldOperation, applog.OpLogin, applog.FieldError, err)
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: res.Token,
		TokenType:   res.TokenType,
		ExpiresIn:   res.ExpiresIn,
		Message:     loginMessage,
		User:        res.User,
	})
}
