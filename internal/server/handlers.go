package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/albedosehen/certvault/internal/acme"
	"github.com/albedosehen/certvault/internal/certstore"
	vaulterrors "github.com/albedosehen/certvault/internal/errors"
	"github.com/albedosehen/certvault/internal/lifecycle"
	"github.com/albedosehen/certvault/internal/observability"
	"github.com/albedosehen/certvault/internal/pool"
)

// Handlers holds the HTTP endpoint implementations.
type Handlers struct {
	svc        lifecycle.Service
	browser    pool.Browser
	exporter   pool.Exporter
	challenges acme.ChallengeStore
	logger     observability.Logger
	validate   *validator.Validate
}

// NewHandlers creates the endpoint set.
func NewHandlers(
	svc lifecycle.Service,
	browser pool.Browser,
	exporter pool.Exporter,
	challenges acme.ChallengeStore,
	logger observability.Logger,
) *Handlers {
	return &Handlers{
		svc:        svc,
		browser:    browser,
		exporter:   exporter,
		challenges: challenges,
		logger:     logger.WithFields(observability.Component("server")),
		validate:   validator.New(),
	}
}

func (h *Handlers) storeParam(r *http.Request) (certstore.Store, error) {
	return certstore.ParseStore(chi.URLParam(r, "store"))
}

// GET /api/vault/tls/check/{store}?page&page_size
func (h *Handlers) handleList(w http.ResponseWriter, r *http.Request) {
	store, err := h.storeParam(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	offset, limit, err := paging(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	page, err := h.svc.List(r.Context(), store, offset, limit)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondOK(w, fmt.Sprintf("certificates for store %s", store), page)
}

// GET /api/vault/tls/detail/{store}?domain&source
func (h *Handlers) handleDetail(w http.ResponseWriter, r *http.Request) {
	store, err := h.storeParam(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	domain := r.URL.Query().Get("domain")
	var source *certstore.Source
	if raw := r.URL.Query().Get("source"); raw != "" {
		parsed, err := certstore.ParseSource(raw)
		if err != nil {
			respondError(w, r, h.logger, err)
			return
		}
		source = &parsed
	}

	cert, err := h.svc.Detail(r.Context(), store, domain, source)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondOK(w, "certificate detail", cert)
}

// GET /api/vault/tls/certificate/{id}
func (h *Handlers) handleGetByID(w http.ResponseWriter, r *http.Request) {
	cert, err := h.svc.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondOK(w, "certificate detail", cert)
}

// POST /api/vault/tls/refresh/{store}
func (h *Handlers) handleRefresh(w http.ResponseWriter, r *http.Request) {
	store, err := h.storeParam(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if err := h.svc.Refresh(r.Context(), store); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondAccepted(w, fmt.Sprintf("refresh of store %s scheduled", store), nil)
}

// POST /api/vault/tls/invalidate-cache/{store}
//
// The path segment "all" expands to every store.
func (h *Handlers) handleInvalidateCache(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "store")

	var stores []certstore.Store
	if raw == "all" {
		stores = certstore.Stores
	} else {
		store, err := certstore.ParseStore(raw)
		if err != nil {
			respondError(w, r, h.logger, err)
			return
		}
		stores = []certstore.Store{store}
	}

	if err := h.svc.InvalidateCache(r.Context(), stores); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondAccepted(w, "cache invalidation scheduled", nil)
}

// POST /api/vault/tls/create
func (h *Handlers) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	cert, err := h.svc.Create(r.Context(), lifecycle.CreateInput{
		Domain:      req.Domain,
		FolderName:  req.FolderName,
		Email:       req.Email,
		Certificate: req.Certificate,
		PrivateKey:  req.PrivateKey,
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondCreated(w, "certificate created", cert)
}

// PUT /api/vault/tls/update/manual-add
func (h *Handlers) handleUpdateManualAdd(w http.ResponseWriter, r *http.Request) {
	var req updateManualAddRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	cert, err := h.svc.UpdateManualAdd(r.Context(), lifecycle.UpdateManualAddInput{
		ID:          req.ID,
		Domain:      req.Domain,
		FolderName:  req.FolderName,
		Email:       req.Email,
		Certificate: req.Certificate,
		PrivateKey:  req.PrivateKey,
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondOK(w, "certificate updated", cert)
}

// PUT /api/vault/tls/update/manual-apply
func (h *Handlers) handleUpdateManualApply(w http.ResponseWriter, r *http.Request) {
	var req updateManualApplyRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	cert, err := h.svc.UpdateManualApply(r.Context(), lifecycle.UpdateManualApplyInput{
		ID:         req.ID,
		FolderName: req.FolderName,
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondOK(w, "certificate updated", cert)
}

// DELETE /api/vault/tls/delete
func (h *Handlers) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	if err := h.svc.Delete(r.Context(), req.ID); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondOK(w, "certificate deleted", nil)
}

// POST /api/vault/tls/apply
func (h *Handlers) handleApply(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	cert, err := h.svc.Apply(r.Context(), lifecycle.ApplyInput{
		Domain:       req.Domain,
		SANs:         req.SANs,
		Email:        req.Email,
		FolderName:   req.FolderName,
		ForceRenewal: req.ForceRenewal,
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondAccepted(w, "certificate issuance started", cert)
}

// POST /api/vault/tls/reapply/auto
func (h *Handlers) handleReapplyAuto(w http.ResponseWriter, r *http.Request) {
	var req reapplyAutoRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	cert, err := h.svc.ReapplyAuto(r.Context(), lifecycle.ReapplyAutoInput{
		ID:           req.ID,
		Email:        req.Email,
		SANs:         req.SANs,
		ForceRenewal: req.ForceRenewal,
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondAccepted(w, "certificate re-issuance started", cert)
}

// POST /api/vault/tls/reapply/manual-apply
func (h *Handlers) handleReapplyManualApply(w http.ResponseWriter, r *http.Request) {
	var req reapplyManualApplyRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	cert, err := h.svc.ReapplyManualApply(r.Context(), lifecycle.ReapplyManualApplyInput{
		ID:           req.ID,
		Domain:       req.Domain,
		FolderName:   req.FolderName,
		Email:        req.Email,
		SANs:         req.SANs,
		ForceRenewal: req.ForceRenewal,
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondAccepted(w, "certificate re-issuance started", cert)
}

// POST /api/vault/tls/reapply/manual-add
func (h *Handlers) handleReapplyManualAdd(w http.ResponseWriter, r *http.Request) {
	var req reapplyManualAddRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	cert, err := h.svc.ReapplyManualAdd(r.Context(), lifecycle.ReapplyManualAddInput{
		ID:          req.ID,
		Certificate: req.Certificate,
		PrivateKey:  req.PrivateKey,
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondOK(w, "certificate material replaced", cert)
}

// POST /api/vault/tls/search
func (h *Handlers) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	q := certstore.SearchQuery{Keyword: req.Keyword}
	if req.Store != nil {
		store, err := certstore.ParseStore(*req.Store)
		if err != nil {
			respondError(w, r, h.logger, err)
			return
		}
		q.Store = &store
	}
	if req.Source != nil {
		source, err := certstore.ParseSource(*req.Source)
		if err != nil {
			respondError(w, r, h.logger, err)
			return
		}
		q.Source = &source
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	size := req.PageSize
	if size < 1 {
		size = defaultPageSize
	}
	q.Offset = (page - 1) * size
	q.Limit = size

	result, err := h.svc.Search(r.Context(), q)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondOK(w, "search results", result)
}

// POST /api/vault/file/export/{store}
func (h *Handlers) handleFileExport(w http.ResponseWriter, r *http.Request) {
	store, err := h.storeParam(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	report, err := h.exporter.ExportStore(r.Context(), store)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondOK(w, fmt.Sprintf("store %s exported", store), report)
}

// GET /api/vault/file/list/{store}?path
func (h *Handlers) handleFileList(w http.ResponseWriter, r *http.Request) {
	store, err := h.storeParam(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	entries, err := h.browser.List(r.Context(), store, r.URL.Query().Get("path"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondOK(w, "directory listing", entries)
}

// GET /api/vault/file/download/{store}?path
func (h *Handlers) handleFileDownload(w http.ResponseWriter, r *http.Request) {
	store, err := h.storeParam(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	data, name, err := h.browser.ReadFile(r.Context(), store, r.URL.Query().Get("path"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	_, _ = w.Write(data)
}

// GET /api/vault/file/content/{store}?path
func (h *Handlers) handleFileContent(w http.ResponseWriter, r *http.Request) {
	store, err := h.storeParam(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	data, _, err := h.browser.ReadFile(r.Context(), store, r.URL.Query().Get("path"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(data)
}

// GET /.well-known/acme-challenge/{token}
//
// Serves the HTTP-01 key authorization in plain text; everything else this
// service answers is JSON, but the ACME validator expects the raw string.
func (h *Handlers) handleChallenge(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	keyAuth, err := h.challenges.Get(token)
	if err != nil {
		respondError(w, r, h.logger,
			vaulterrors.WrapError(vaulterrors.ErrCodeChallengeNotFound,
				fmt.Sprintf("challenge token %q not found", token), err))
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte(keyAuth))
}
