package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/wolfeidau/certsign/internal/service"
)

func parseUserID(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}

func (s *Server) listPlans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Plans().All())
}

type setTokenRequest struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

type balanceResponse struct {
	Balance float64 `json:"balance"`
}

func (s *Server) setToken(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req setTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	username := req.Username
	if username == "" {
		username = p.Username
	}

	balance, err := s.svc.SetIssuerToken(r.Context(), p.UserID, username, req.Token)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{Balance: balance})
}

func (s *Server) balance(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	balance, err := s.svc.Balance(r.Context(), p.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{Balance: balance})
}

type registerRequest struct {
	UDID string `json:"udid"`
	Plan string `json:"plan"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	reg, err := s.svc.RegisterDevice(r.Context(), p.UserID, req.UDID, req.Plan)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newRegistrationView(reg))
}

func (s *Server) listRegistrations(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	regs, err := s.svc.Registrations(r.Context(), p.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]registrationView, 0, len(regs))
	for _, reg := range regs {
		out = append(out, newRegistrationView(reg))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	res, err := s.svc.Search(r.Context(), p.UserID, r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newRegistrationView(res.Registration))
}

type toggleResponse struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) toggle(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	enabled, err := s.svc.ToggleEnabled(r.Context(), p.UserID, r.PathValue("udid"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toggleResponse{Enabled: enabled})
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	dl, err := s.svc.DownloadCredential(r.Context(), p.UserID, r.PathValue("udid"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newDownloadView(dl))
}

func (s *Server) uploadPackage(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	body := http.MaxBytesReader(w, r.Body, s.maxUpload)
	defer body.Close()

	pkg, err := s.svc.UploadPackage(r.Context(), p.UserID, r.URL.Query().Get("filename"), body)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		err = &service.ValidationError{Field: "file", Reason: fmt.Sprintf("exceeds %d bytes", tooLarge.Limit)}
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newPackageView(pkg))
}

func (s *Server) listPackages(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	pkgs, err := s.svc.ListPackages(r.Context(), p.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]packageView, 0, len(pkgs))
	for _, pkg := range pkgs {
		out = append(out, newPackageView(pkg))
	}
	writeJSON(w, http.StatusOK, out)
}

func packageID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, &service.ValidationError{Field: "id", Reason: "not a UUID"}
	}
	return id, nil
}

func (s *Server) getPackage(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	id, err := packageID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	pkg, err := s.svc.GetPackage(r.Context(), p.UserID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newPackageView(pkg))
}

type installResponse struct {
	InstallLink string `json:"install_link"`
}

func (s *Server) installLink(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	id, err := packageID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	link, err := s.svc.InstallLink(r.Context(), p.UserID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, installResponse{InstallLink: link})
}

func (s *Server) deletePackage(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	id, err := packageID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.svc.DeletePackage(r.Context(), p.UserID, id); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type createKeysRequest struct {
	Plan     string `json:"plan"`
	Quantity int    `json:"quantity"`
}

func (s *Server) createKeys(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req createKeysRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	keys, err := s.svc.CreateKeys(r.Context(), p.UserID, req.Plan, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]keyView, 0, len(keys))
	for _, k := range keys {
		out = append(out, newKeyView(k))
	}
	writeJSON(w, http.StatusCreated, out)
}

type redeemKeyRequest struct {
	Code string `json:"code"`
	UDID string `json:"udid"`
}

func (s *Server) redeemKey(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req redeemKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	reg, err := s.svc.RedeemKey(r.Context(), p.UserID, req.Code, req.UDID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newRegistrationView(reg))
}

func (s *Server) keyStats(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	stats, err := s.svc.KeyStats(r.Context(), p.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]keyStatsView, 0, len(stats))
	for _, st := range stats {
		out = append(out, keyStatsView{
			Plan:   st.Plan,
			Name:   s.svc.Plans().Name(st.Plan),
			Total:  st.Total,
			Used:   st.Used,
			Unused: st.Unused,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
