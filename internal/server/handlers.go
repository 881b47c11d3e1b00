package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/ldap-gate/internal/auth"
	"github.com/isometry/ldap-gate/internal/ldap"
	"github.com/isometry/ldap-gate/internal/logging"
)

// HealthCheckTimeout bounds the directory ping of the readiness probe.
const HealthCheckTimeout = 5 * time.Second

type signInRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userResponse struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// modifyRequest carries the fields a caller may change on their own entry.
// Absent fields are left alone and empty strings remove the attribute.
type modifyRequest struct {
	Mail      *string `json:"mail"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Name      *string `json:"name"`
	School    *string `json:"school"`
	Genie     *string `json:"genie"`
	Matricule *string `json:"matricule"`
	Number    *string `json:"number"`
	Password  *string `json:"password"`
	Picture   *string `json:"picture"` // Base64
}

type modifyResponse struct {
	Modified bool `json:"modified"`
}

type groupsResponse struct {
	Groups []string `json:"groups"`
}

func (s *router) liveness(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(s.started)
	writeJSON(w, http.StatusOK, healthBody{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Data: map[string]any{
			"service":    logging.Name,
			"started_at": s.started.UTC().Format(time.RFC3339),
			"uptime_sec": int64(uptime.Seconds()),
		},
	})
}

func (s *router) readiness(w http.ResponseWriter, r *http.Request) {
	if s.deps.Directory == nil {
		writeJSON(w, http.StatusServiceUnavailable, healthBody{
			Status:    "unhealthy",
			Timestamp: time.Now().UTC(),
			Error:     "directory not configured",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), HealthCheckTimeout)
	defer cancel()

	start := time.Now()
	err := s.deps.Directory.Ping(ctx)
	stats := s.deps.Directory.Stats()

	data := map[string]any{
		"latency":         time.Since(start).String(),
		"sessions_opened": stats.Opened,
		"sessions_failed": stats.Failed,
		"sessions_active": stats.Active,
	}

	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, healthBody{
			Status:    "unhealthy",
			Timestamp: time.Now().UTC(),
			Data:      data,
			Error:     err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, healthBody{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
}

func (s *router) login(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := s.deps.SignIn.SignIn(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Invalid username or password")
			return
		}
		tflog.SubsystemError(r.Context(), logging.SubsystemHTTP, "Sign-in failed", map[string]any{
			"error": err.Error(),
		})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *router) currentUser(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, userResponse{Username: user.UID, Email: user.Mail})
}

func (s *router) modifyUser(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	var req modifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	update, err := req.toModifyUser()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	modified, err := s.deps.Users.Modify(r.Context(), user.UID, update)
	if err != nil {
		tflog.SubsystemError(r.Context(), logging.SubsystemHTTP, "User modification failed", map[string]any{
			"uid":      user.UID,
			"modified": modified,
			"error":    err.Error(),
		})
		switch {
		case errors.Is(err, ldap.ErrEntryNotFound):
			writeError(w, http.StatusNotFound, "User not found")
		case ldap.IsConnectionError(err):
			writeError(w, http.StatusServiceUnavailable, "Directory unavailable")
		case ldap.IsPermissionError(err):
			writeError(w, http.StatusForbidden, "Directory refused the update")
		default:
			writeError(w, http.StatusBadGateway, "Directory update failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, modifyResponse{Modified: modified})
}

func (s *router) userGroups(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	groups := []string{}
	if s.deps.Groups != nil {
		for _, group := range s.deps.Groups.GroupsOf(user.UID) {
			groups = append(groups, group.CN)
		}
	}

	writeJSON(w, http.StatusOK, groupsResponse{Groups: groups})
}

func (m *modifyRequest) toModifyUser() (*ldap.ModifyUser, error) {
	update := ldap.NewModifyUser()

	setters := []struct {
		value *string
		set   func(string) *ldap.ModifyUser
	}{
		{m.Mail, update.Mail},
		{m.FirstName, update.FirstName},
		{m.LastName, update.LastName},
		{m.Name, update.Name},
		{m.School, update.School},
		{m.Genie, update.Genie},
		{m.Matricule, update.Matricule},
		{m.Number, update.Number},
	}
	for _, s := range setters {
		if s.value != nil {
			s.set(*s.value)
		}
	}

	if m.Password != nil {
		if *m.Password == "" {
			return nil, errors.New("password cannot be empty")
		}
		update.Password(*m.Password)
	}

	if m.Picture != nil {
		picture, err := base64.StdEncoding.DecodeString(*m.Picture)
		if err != nil {
			return nil, errors.New("picture must be base64 encoded")
		}
		update.Picture(picture)
	}

	return update, update.Err()
}
