// ABOUTME: Account endpoints: registration and login with JWT issuance
// ABOUTME: Passwords are bcrypt-hashed; login failures stay indistinguishable

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ycyw/support-chat/internal/auth"
	"github.com/ycyw/support-chat/internal/store"
)

// RegisterRequest is the JSON body for POST /api/auth/register.
type RegisterRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"` // defaults to USER
}

// LoginRequest is the JSON body for POST /api/auth/login.
type LoginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// LoginResponse is the JSON response for successful register/login calls.
type LoginResponse struct {
	Token string `json:"token"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Password == "" {
		s.sendJSONError(w, http.StatusBadRequest, "name and password are required")
		return
	}

	role := req.Role
	switch role {
	case "":
		role = store.RoleUser
	case store.RoleUser, store.RoleSupport:
	default:
		s.sendJSONError(w, http.StatusBadRequest, "unknown role")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("failed to hash password", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	user, err := s.store.CreateUser(r.Context(), req.Name, hash, role)
	if errors.Is(err, store.ErrDuplicateUser) {
		s.sendJSONError(w, http.StatusConflict, "name already taken")
		return
	}
	if err != nil {
		s.logger.Error("failed to create user", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.logger.Info("user registered", "name", user.Name, "role", user.Role)
	s.issueToken(w, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	user, err := s.store.GetUserByName(r.Context(), req.Name)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("failed to look up user", "error", err)
		}
		// Burn a hash comparison anyway so unknown names take as long as
		// wrong passwords
		auth.CheckPassword("", req.Password)
		s.sendJSONError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		s.sendJSONError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	s.issueToken(w, user)
}

func (s *Server) issueToken(w http.ResponseWriter, user *store.User) {
	token, err := s.verifier.Generate(auth.Identity{Name: user.Name, Role: user.Role}, s.tokenTTL)
	if err != nil {
		s.logger.Error("failed to sign token", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.sendJSON(w, http.StatusOK, LoginResponse{
		Token: token,
		Name:  user.Name,
		Role:  user.Role,
	})
}
