package v1

// Product is a catalog entry. Products are owned by the backend; the console
// only lists and deletes them.
type Product struct {
	Id          int64   `json:"id"`
	Sku         string  `json:"sku"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Active      bool    `json:"active"`
}

// ProductPage is one page of a filtered product listing.
type ProductPage struct {
	Products   []Product `json:"products"`
	Total      int       `json:"total"`
	Page       int       `json:"page"`
	PerPage    int       `json:"per_page"`
	TotalPages int       `json:"total_pages"`
}

type ProductCreate struct {
	Sku         string  `json:"sku" validate:"required,notblank"`
	Name        string  `json:"name" validate:"required,notblank"`
	Description *string `json:"description,omitempty"`
	Active      *bool   `json:"active,omitempty"`
}

type ProductUpdate struct {
	Sku         *string `json:"sku,omitempty" validate:"omitempty,min=1"`
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1"`
	Description *string `json:"description,omitempty"`
	Active      *bool   `json:"active,omitempty"`
}

// ActiveFilter is the tri-state active filter of a product listing.
type ActiveFilter string

const (
	ActiveAny      ActiveFilter = ""
	ActiveOnly     ActiveFilter = "true"
	ActiveInactive ActiveFilter = "false"
)

// ParseActiveFilter accepts true/false/active/inactive/all (and the empty
// string for all).
func ParseActiveFilter(s string) (ActiveFilter, bool) {
	switch s {
	case "", "all", "any":
		return ActiveAny, true
	case "true", "active":
		return ActiveOnly, true
	case "false", "inactive":
		return ActiveInactive, true
	default:
		return ActiveAny, false
	}
}

// ProductFilter holds the listing criteria. Empty strings do not filter.
type ProductFilter struct {
	Sku         string
	Name        string
	Description string
	Active      ActiveFilter
}

// JobAccepted is returned by endpoints that start an asynchronous job.
type JobAccepted struct {
	JobId   string `json:"job_id"`
	Message string `json:"message,omitempty"`
}

type Webhook struct {
	Id        int64  `json:"id"`
	Url       string `json:"url"`
	EventType string `json:"event_type,omitempty"`
	Enabled   bool   `json:"enabled"`
}

type WebhookCreate struct {
	Url       string `json:"url" validate:"required,http_url"`
	EventType string `json:"event_type,omitempty" validate:"event_type"`
	Enabled   *bool  `json:"enabled,omitempty"`
}

type WebhookUpdate struct {
	Url       *string `json:"url,omitempty" validate:"omitempty,http_url"`
	EventType *string `json:"event_type,omitempty" validate:"omitempty,event_type"`
	Enabled   *bool   `json:"enabled,omitempty"`
}

// WebhookTestResult is the simulated delivery returned by a webhook test.
type WebhookTestResult struct {
	Message       string        `json:"message,omitempty"`
	DummyResponse DummyResponse `json:"dummy_response"`
}

type DummyResponse struct {
	Status int    `json:"status"`
	Body   string `json:"body,omitempty"`
}

type Message struct {
	Message string `json:"message"`
}

type Error struct {
	Error string `json:"error"`
}

type Health struct {
	Status string `json:"status"`
}
