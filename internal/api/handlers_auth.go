package api

import (
	"net/http"

	"github.com/mcauthd/yggdrasil"
)

// wireProfile is the minimal profile shape embedded in token responses.
type wireProfile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type wireUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type authResponse struct {
	AccessToken       string        `json:"accessToken"`
	ClientToken       string        `json:"clientToken"`
	AvailableProfiles []wireProfile `json:"availableProfiles"`
	SelectedProfile   *wireProfile  `json:"selectedProfile,omitempty"`
	User              *wireUser     `json:"user,omitempty"`
}

func toAuthResponse(result yggdrasil.AuthResult, includeUser bool) authResponse {
	resp := authResponse{
		AccessToken:       result.AccessToken,
		ClientToken:       result.ClientToken,
		AvailableProfiles: make([]wireProfile, 0, len(result.AvailableProfiles)),
	}
	for _, p := range result.AvailableProfiles {
		resp.AvailableProfiles = append(resp.AvailableProfiles, wireProfile{ID: p.ID, Name: p.Name})
	}
	if result.SelectedProfile != nil {
		resp.SelectedProfile = &wireProfile{ID: result.SelectedProfile.ID, Name: result.SelectedProfile.Name}
	}
	if includeUser {
		resp.User = &wireUser{ID: result.User.ID, Username: result.User.Username}
	}
	return resp
}

func (s *Server) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username    string `json:"username"`
		Password    string `json:"password"`
		ClientToken string `json:"clientToken"`
		RequestUser bool   `json:"requestUser"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.engine.Authenticate(r.Context(), yggdrasil.Credentials{
		Username:    req.Username,
		Password:    req.Password,
		ClientToken: req.ClientToken,
		IP:          clientIP(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuthResponse(result, req.RequestUser))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccessToken     string       `json:"accessToken"`
		ClientToken     string       `json:"clientToken"`
		RequestUser     bool         `json:"requestUser"`
		SelectedProfile *wireProfile `json:"selectedProfile"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	var selectID string
	if req.SelectedProfile != nil {
		selectID = req.SelectedProfile.ID
	}

	result, err := s.engine.Refresh(r.Context(), req.AccessToken, req.ClientToken, selectID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuthResponse(result, req.RequestUser))
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccessToken string `json:"accessToken"`
		ClientToken string `json:"clientToken"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.engine.Validate(r.Context(), req.AccessToken, req.ClientToken); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccessToken string `json:"accessToken"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.engine.Invalidate(r.Context(), req.AccessToken)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.engine.SignOut(r.Context(), req.Username, req.Password); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username   string `json:"username"`
		Password   string `json:"password"`
		Nickname   string `json:"nickname"`
		InviteCode string `json:"inviteCode"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	user, err := s.engine.Register(r.Context(), yggdrasil.Registration{
		Username:   req.Username,
		Password:   req.Password,
		Nickname:   req.Nickname,
		InviteCode: req.InviteCode,
		IP:         clientIP(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		ID                 string `json:"id"`
		Username           string `json:"username"`
		Role               string `json:"role"`
		PersonalInviteCode string `json:"personalInviteCode,omitempty"`
	}{
		ID:                 user.ID,
		Username:           user.Username,
		Role:               string(user.Role),
		PersonalInviteCode: user.PersonalInviteCode,
	})
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.engine.DeleteAccount(r.Context(), req.Username, req.Password); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRescueCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	code, err := s.engine.IssueRescueCode(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		RescueCode string `json:"rescueCode"`
	}{RescueCode: code})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username    string `json:"username"`
		RescueCode  string `json:"rescueCode"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.engine.ResetPassword(r.Context(), req.Username, req.RescueCode, req.NewPassword); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		BanUntil int64  `json:"banUntil"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.engine.Ban(r.Context(), bearerToken(r), req.Username, req.BanUntil); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
