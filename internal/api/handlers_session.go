package api

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcauthd/yggdrasil"
	"github.com/mcauthd/yggdrasil/identity"
)

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccessToken     string `json:"accessToken"`
		SelectedProfile string `json:"selectedProfile"`
		ServerID        string `json:"serverId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	err := s.engine.Join(r.Context(), req.AccessToken, req.SelectedProfile, req.ServerID, clientIP(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHasJoined(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	export, err := s.engine.HasJoined(r.Context(), q.Get("serverId"), q.Get("username"), q.Get("ip"))
	if err != nil {
		// Any failure is 204: game servers treat every non-200 as
		// "not verified" and must learn nothing more.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, export)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	signed := r.URL.Query().Get("unsigned") == "false"
	export, err := s.engine.ProfileExportByID(mux.Vars(r)["id"], signed)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, export)
}

func (s *Server) handleProfilesByNames(w http.ResponseWriter, r *http.Request) {
	var names []string
	if err := decodeJSON(r, &names); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.ProfileExportsByNames(names))
}

func (s *Server) handleTexture(w http.ResponseWriter, r *http.Request) {
	blob, err := s.engine.TextureBlob(mux.Vars(r)["hash"])
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	_, _ = w.Write(blob)
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.engine.Profiles(r.Context(), bearerToken(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]wireProfile, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, wireProfile{ID: p.ID, Name: p.Name})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	p, err := s.engine.CreateProfile(r.Context(), bearerToken(r), req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, wireProfile{ID: p.ID, Name: p.Name})
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	err := s.engine.DeleteProfile(r.Context(), bearerToken(r), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUploadTexture(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	kind, err := textureKind(vars["kind"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	limit := s.engine.Config().Server.MaxUploadSize
	if limit <= 0 {
		limit = maxBodySize
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		s.writeError(w, r, yggdrasil.ErrMissingField)
		return
	}
	if int64(len(data)) > limit {
		s.writeError(w, r, yggdrasil.ErrTextureTooLarge)
		return
	}

	var model identity.TextureModel
	if r.URL.Query().Get("model") == "slim" {
		model = identity.ModelSlim
	}

	err = s.engine.SetTexture(r.Context(), bearerToken(r), vars["id"], kind, data, model)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearTexture(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	kind, err := textureKind(vars["kind"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	err = s.engine.ClearTexture(r.Context(), bearerToken(r), vars["id"], kind)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCapeVisibility(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Visible bool `json:"visible"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	err := s.engine.SetCapeVisible(r.Context(), bearerToken(r), mux.Vars(r)["id"], req.Visible)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func textureKind(raw string) (yggdrasil.TextureKind, error) {
	switch raw {
	case "skin":
		return yggdrasil.TextureSkin, nil
	case "cape":
		return yggdrasil.TextureCape, nil
	default:
		return "", yggdrasil.ErrMissingField
	}
}
