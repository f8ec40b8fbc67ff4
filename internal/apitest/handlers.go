package apitest

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	v1 "github.com/acme/catalog-console/api/v1"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
)

const defaultPerPage = 20

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, v1.Health{Status: "healthy"})
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "No file part")
		return
	}
	defer file.Close()
	if header.Filename == "" {
		writeError(w, r, http.StatusBadRequest, "No selected file")
		return
	}
	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	id := s.addJob(jobImport, content)
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, v1.JobAccepted{JobId: id})
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := atoiOr(q.Get("page"), 1)
	perPage := atoiOr(q.Get("per_page"), defaultPerPage)

	s.mu.Lock()
	matched := make([]v1.Product, 0, len(s.products))
	for _, p := range s.products {
		if v, ok := q["sku"]; ok && !containsFold(p.Sku, v[0]) {
			continue
		}
		if v, ok := q["name"]; ok && !containsFold(p.Name, v[0]) {
			continue
		}
		if v, ok := q["description"]; ok && (p.Description == nil || !containsFold(*p.Description, v[0])) {
			continue
		}
		if v, ok := q["active"]; ok && p.Active != parseBool(v[0]) {
			continue
		}
		matched = append(matched, p)
	}
	s.mu.Unlock()

	totalPages := (len(matched) + perPage - 1) / perPage
	start := (page - 1) * perPage
	end := start + perPage
	if start > len(matched) {
		start = len(matched)
	}
	if end > len(matched) {
		end = len(matched)
	}

	render.JSON(w, r, v1.ProductPage{
		Products:   matched[start:end],
		Total:      len(matched),
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
	})
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	var body v1.ProductCreate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Sku == "" || body.Name == "" {
		writeError(w, r, http.StatusBadRequest, "SKU and Name are required")
		return
	}

	s.mu.Lock()
	for _, p := range s.products {
		if strings.EqualFold(p.Sku, body.Sku) {
			s.mu.Unlock()
			writeError(w, r, http.StatusConflict, "A product with this SKU already exists.")
			return
		}
	}
	active := true
	if body.Active != nil {
		active = *body.Active
	}
	p := s.insertProduct(v1.Product{Sku: body.Sku, Name: body.Name, Description: body.Description, Active: active})
	s.mu.Unlock()

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, p)
}

func (s *Server) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body v1.ProductUpdate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.products {
		if s.products[i].Id != id {
			continue
		}
		if body.Sku != nil {
			for _, other := range s.products {
				if other.Id != id && strings.EqualFold(other.Sku, *body.Sku) {
					writeError(w, r, http.StatusConflict, "A product with this SKU already exists.")
					return
				}
			}
			s.products[i].Sku = *body.Sku
		}
		if body.Name != nil {
			s.products[i].Name = *body.Name
		}
		if body.Description != nil {
			s.products[i].Description = body.Description
		}
		if body.Active != nil {
			s.products[i].Active = *body.Active
		}
		render.JSON(w, r, s.products[i])
		return
	}
	writeError(w, r, http.StatusNotFound, "Not Found")
}

func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.products {
		if s.products[i].Id == id {
			s.products = append(s.products[:i], s.products[i+1:]...)
			render.JSON(w, r, v1.Message{Message: "Product deleted successfully."})
			return
		}
	}
	writeError(w, r, http.StatusNotFound, "Not Found")
}

func (s *Server) deleteAllProducts(w http.ResponseWriter, r *http.Request) {
	id := s.addJob(jobBulkDelete, nil)
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, v1.JobAccepted{JobId: id, Message: "Bulk delete task started."})
}

func (s *Server) listWebhooks(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.Webhooks())
}

func (s *Server) createWebhook(w http.ResponseWriter, r *http.Request) {
	var body v1.WebhookCreate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Url == "" {
		writeError(w, r, http.StatusBadRequest, "URL is required")
		return
	}
	hook := v1.Webhook{Url: body.Url, EventType: body.EventType, Enabled: true}
	if hook.EventType == "" {
		hook.EventType = "product_update"
	}
	if body.Enabled != nil {
		hook.Enabled = *body.Enabled
	}

	s.mu.Lock()
	s.nextWebhookID++
	hook.Id = s.nextWebhookID
	s.webhooks = append(s.webhooks, hook)
	s.mu.Unlock()

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, hook)
}

func (s *Server) updateWebhook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body v1.WebhookUpdate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.webhooks {
		if s.webhooks[i].Id != id {
			continue
		}
		if body.Url != nil {
			s.webhooks[i].Url = *body.Url
		}
		if body.EventType != nil {
			s.webhooks[i].EventType = *body.EventType
		}
		if body.Enabled != nil {
			s.webhooks[i].Enabled = *body.Enabled
		}
		render.JSON(w, r, s.webhooks[i])
		return
	}
	writeError(w, r, http.StatusNotFound, "Not Found")
}

func (s *Server) deleteWebhook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.webhooks {
		if s.webhooks[i].Id == id {
			s.webhooks = append(s.webhooks[:i], s.webhooks[i+1:]...)
			render.JSON(w, r, v1.Message{Message: "Webhook deleted successfully."})
			return
		}
	}
	writeError(w, r, http.StatusNotFound, "Not Found")
}

func (s *Server) testWebhook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	found := false
	for _, hook := range s.webhooks {
		if hook.Id == id {
			found = true
			break
		}
	}
	s.mu.Unlock()
	if !found {
		writeError(w, r, http.StatusNotFound, "Not Found")
		return
	}

	render.JSON(w, r, v1.WebhookTestResult{
		Message:       "Test event triggered.",
		DummyResponse: v1.DummyResponse{Status: http.StatusOK, Body: "OK"},
	})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, r, http.StatusNotFound, "Not Found")
		return 0, false
	}
	return id, true
}

func atoiOr(s string, def int) int {
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "t", "yes":
		return true
	default:
		return false
	}
}

func newJobID() string {
	return uuid.NewString()
}
