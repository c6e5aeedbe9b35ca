package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/benpsk/kalakaari-shop/internal/catalog"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type apiVerifyResponse struct {
	catalog.VerificationResponse
	Verified    bool   `json:"verified"`
	ExplorerURL string `json:"explorer_url,omitempty"`
}

func (h handler) apiProducts(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		writeErrorJSON(w, http.StatusServiceUnavailable, "catalog is not configured")
		return
	}
	products, err := h.catalog.Products(r.Context())
	if err != nil {
		h.log.Warn("load products", zap.Error(err))
		writeErrorJSON(w, http.StatusBadGateway, "Failed to load products. Please try again.")
		return
	}
	if products == nil {
		products = []catalog.Product{}
	}
	writeJSON(w, http.StatusOK, products)
}

func (h handler) apiVerify(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		writeErrorJSON(w, http.StatusServiceUnavailable, "catalog is not configured")
		return
	}
	publicID := strings.TrimSpace(chi.URLParam(r, "publicID"))
	if publicID == "" {
		writeErrorJSON(w, http.StatusBadRequest, "public id is required")
		return
	}

	res, err := h.catalog.Verify(r.Context(), publicID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeErrorJSON(w, http.StatusNotFound, "No record found for this item.")
			return
		}
		h.log.Warn("verify item", zap.String("public_id", publicID), zap.Error(err))
		writeErrorJSON(w, http.StatusBadGateway, "Verification is unavailable. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, apiVerifyResponse{
		VerificationResponse: res,
		Verified:             res.Verified(),
		ExplorerURL:          res.ExplorerURL(h.explorerTxURL),
	})
}
