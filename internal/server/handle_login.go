package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/playperu/breachhunt/internal/engine"
)

// TeamLoginRequest is the request body for POST /api/login/team.
type TeamLoginRequest struct {
	Name       string `json:"name"`
	AccessCode string `json:"accessCode"`
}

type TeamLoginResponse struct {
	Token    string `json:"token"`
	TeamID   string `json:"teamId"`
	TeamName string `json:"teamName"`
}

// StaffLoginRequest is the request body for POST /api/login/staff.
type StaffLoginRequest struct {
	Role     engine.Role `json:"role"`
	Password string      `json:"password"`
}

type StaffLoginResponse struct {
	Token string      `json:"token"`
	Role  engine.Role `json:"role"`
}

func handleTeamLogin(logger *slog.Logger, auth *Auth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TeamLoginRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		req.AccessCode = strings.TrimSpace(req.AccessCode)
		if req.Name == "" || req.AccessCode == "" {
			writeError(w, http.StatusBadRequest, "name and accessCode are required")
			return
		}

		token, team, err := auth.LoginTeam(r.Context(), req.Name, req.AccessCode)
		if errors.Is(err, errInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		if err != nil {
			logger.Error("team login failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		logger.Info("team logged in", "team", team.Name)
		writeJSON(w, http.StatusOK, TeamLoginResponse{Token: token, TeamID: team.ID, TeamName: team.Name})
	}
}

func handleStaffLogin(logger *slog.Logger, auth *Auth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StaffLoginRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Role != engine.RoleAdmin && req.Role != engine.RoleVolunteer {
			writeError(w, http.StatusBadRequest, "role must be admin or volunteer")
			return
		}

		token, err := auth.LoginStaff(req.Role, req.Password)
		if err != nil {
			logger.Warn("staff login rejected", "role", req.Role)
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		logger.Info("staff logged in", "role", req.Role)
		writeJSON(w, http.StatusOK, StaffLoginResponse{Token: token, Role: req.Role})
	}
}

func handleLogout(auth *Auth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth.Logout(tokenFrom(r))
		w.WriteHeader(http.StatusNoContent)
	}
}
