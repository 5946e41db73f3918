package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/jx"

	"github.com/liafood/backoffice/internal/domain/client"
)

// registerClient is the public sign-up of a shop. The client code is
// generated.
func (h *Handler) registerClient(w http.ResponseWriter, r *http.Request) error {
	var c client.Client
	if err := decodeBody(w, r, clientFields(&c)); err != nil {
		return err
	}
	c.Code = ""
	if err := h.catalog.RegisterClient(r.Context(), &c); err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeClient(e, c) })
	return nil
}

func (h *Handler) listClients(w http.ResponseWriter, r *http.Request) error {
	clients := h.catalog.Clients(r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		arr(e, "clients", clients, encodeClient)
		e.ObjEnd()
	})
	return nil
}

func (h *Handler) getClient(w http.ResponseWriter, r *http.Request) error {
	c, ok := h.catalog.Client(r.PathValue("id"))
	if !ok {
		return client.ErrNotFound
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeClient(e, c) })
	return nil
}

// createClient stores a client with an operator-chosen code, or a
// generated one when the code is left empty.
func (h *Handler) createClient(w http.ResponseWriter, r *http.Request) error {
	var c client.Client
	if err := decodeBody(w, r, clientFields(&c)); err != nil {
		return err
	}
	create := h.catalog.CreateClient
	if c.Code == "" {
		create = h.catalog.RegisterClient
	}
	if err := create(r.Context(), &c); err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeClient(e, c) })
	return nil
}

func (h *Handler) updateClient(w http.ResponseWriter, r *http.Request) error {
	id := r.PathValue("id")
	c, ok := h.catalog.Client(id)
	if !ok {
		return client.ErrNotFound
	}
	if err := decodeBody(w, r, clientFields(&c)); err != nil {
		return err
	}
	c.ID = id
	if err := h.catalog.UpdateClient(r.Context(), &c); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeClient(e, c) })
	return nil
}

func (h *Handler) deleteClient(w http.ResponseWriter, r *http.Request) error {
	if err := h.catalog.DeleteClient(r.Context(), r.PathValue("id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// clientByVAT finds a cached client by VAT number in any spelling.
func (h *Handler) clientByVAT(vat string) (client.Client, bool) {
	if strings.TrimSpace(vat) == "" {
		return client.Client{}, false
	}
	want := client.NormalizeVAT(vat)
	for _, c := range h.catalog.Clients("") {
		if client.NormalizeVAT(c.VATNumber) == want {
			return c, true
		}
	}
	return client.Client{}, false
}
