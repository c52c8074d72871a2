package api

import (
	"context"
	_ "embed"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"

	"github.com/felixgeelhaar/tradeflow/internal/errors"
)

//go:embed openapi.yaml
var openapiDocument []byte

// requestValidator checks requests against the embedded OpenAPI document
// before a handler decodes them.
type requestValidator struct {
	doc    *openapi3.T
	router routers.Router
}

func newRequestValidator(ctx context.Context) (*requestValidator, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openapiDocument)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI document: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI document: %w", err)
	}
	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to build OpenAPI router: %w", err)
	}
	return &requestValidator{doc: doc, router: router}, nil
}

// check returns nil for requests the document does not describe.
func (v *requestValidator) check(r *http.Request) error {
	route, params, err := v.router.FindRoute(r)
	if err != nil {
		return nil
	}
	input := &openapi3filter.RequestValidationInput{
		Request:    r,
		PathParams: params,
		Route:      route,
		Options: &openapi3filter.Options{
			AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
		},
	}
	if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
		return errors.New(errors.ErrCodeMalformedInput, validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	reason := "request does not match the API schema"
	var schemaErr *openapi3.SchemaError
	var reqErr *openapi3filter.RequestError
	switch {
	case stderrors.As(err, &schemaErr):
		reason = schemaErr.Reason
		if ptr := schemaErr.JSONPointer(); len(ptr) > 0 {
			reason = fmt.Sprintf("%s: %s", strings.Join(ptr, "."), reason)
		}
	case stderrors.As(err, &reqErr) && reqErr.Reason != "":
		reason = reqErr.Reason
	}

	if stderrors.As(err, &reqErr) && reqErr.Parameter != nil {
		return fmt.Sprintf("parameter %q: %s", reqErr.Parameter.Name, reason)
	}
	return reason
}
