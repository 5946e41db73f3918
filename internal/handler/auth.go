package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/liafood/backoffice/internal/domain/auth"
)

func (h *Handler) loginAdmin(w http.ResponseWriter, r *http.Request) error {
	var email, password string
	if err := decodeBody(w, r, fields{
		"email":    str(&email),
		"password": str(&password),
	}); err != nil {
		return err
	}
	s, err := h.auth.LoginAdmin(r.Context(), email, password)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeSession(e, s) })
	return nil
}

// loginClient opens a client session from a VAT number alone. The number
// identifies the shop; it is not a secret.
func (h *Handler) loginClient(w http.ResponseWriter, r *http.Request) error {
	var vat string
	if err := decodeBody(w, r, fields{"vat_number": str(&vat)}); err != nil {
		return err
	}
	s, err := h.auth.LoginClient(r.Context(), vat)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeSession(e, s) })
	return nil
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) error {
	c, _ := auth.ClaimsFromContext(r.Context())
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeClaims(e, c) })
	return nil
}
