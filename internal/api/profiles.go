package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/regintel/internal/model"
)

func (s *Server) createProfile(w http.ResponseWriter, r *http.Request) {
	var p model.CompanyProfile
	if !decodeBody(w, r, &p) {
		return
	}
	if !validCompanySize(p.CompanySize) {
		badRequest(w, "company_size must be small, medium or large")
		return
	}
	if err := s.store.CreateProfile(r.Context(), &p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) listProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.store.ListProfiles(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if profiles == nil {
		profiles = []model.CompanyProfile{}
	}
	writeJSON(w, http.StatusOK, profiles)
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetProfile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// updateProfile applies the fields present in the body to the stored
// profile. Omitted fields keep their values.
func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetProfile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	id, created := p.ID, p.CreatedAt
	if !decodeBody(w, r, p) {
		return
	}
	p.ID, p.CreatedAt = id, created
	if !validCompanySize(p.CompanySize) {
		badRequest(w, "company_size must be small, medium or large")
		return
	}
	if err := s.store.UpdateProfile(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) deleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteProfile(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func validCompanySize(size model.CompanySize) bool {
	switch size {
	case "", model.CompanySizeSmall, model.CompanySizeMedium, model.CompanySizeLarge:
		return true
	}
	return false
}
