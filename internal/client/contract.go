package client

import (
	"context"
	"fmt"
	"net/http"

	v1 "github.com/acme/catalog-console/api/v1"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
)

// ContractValidator checks API responses against the OpenAPI description of
// the catalog API.
type ContractValidator struct {
	router routers.Router
}

// NewContractValidator builds a validator for the API served at server.
func NewContractValidator(server string) (*ContractValidator, error) {
	doc, err := v1.GetSwagger()
	if err != nil {
		return nil, err
	}
	doc.Servers = openapi3.Servers{&openapi3.Server{URL: server}}

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("building contract router: %w", err)
	}
	return &ContractValidator{router: router}, nil
}

// ContractError is returned when a response does not match the contract.
type ContractError struct {
	Method string
	Path   string
	Err    error
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("response to %s %s violates the API contract: %v", e.Method, e.Path, e.Err)
}

func (e *ContractError) Unwrap() error {
	return e.Err
}

func (v *ContractValidator) ValidateResponse(ctx context.Context, req *http.Request, status int, header http.Header, body []byte) error {
	route, pathParams, err := v.router.FindRoute(req)
	if err != nil {
		return &ContractError{Method: req.Method, Path: req.URL.Path, Err: err}
	}

	input := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: &openapi3filter.RequestValidationInput{
			Request:    req,
			PathParams: pathParams,
			Route:      route,
		},
		Status: status,
		Header: header,
		Options: &openapi3filter.Options{
			IncludeResponseStatus: true,
		},
	}
	input.SetBodyBytes(body)

	if err := openapi3filter.ValidateResponse(ctx, input); err != nil {
		return &ContractError{Method: req.Method, Path: req.URL.Path, Err: err}
	}
	return nil
}
