package http

import (
	"context"
	"crypto/subtle"
	_ "embed"
	"errors"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
)

//go:embed openapi.yaml
var rawSpec []byte

var errUnauthorized = errors.New("missing or invalid API key")

// LoadSpec parses and validates the embedded OpenAPI document.
func LoadSpec() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(rawSpec)
	if err != nil {
		return nil, fmt.Errorf("load openapi spec: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid openapi spec: %w", err)
	}
	return doc, nil
}

// validator checks requests against the OpenAPI document. Paths the document
// does not describe (assets, metrics) are passed through untouched.
type validator struct {
	router routers.Router
	apiKey string
}

func newValidator(doc *openapi3.T, apiKey string) (*validator, error) {
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, err
	}
	return &validator{router: router, apiKey: apiKey}, nil
}

func (v *validator) authenticate(_ context.Context, in *openapi3filter.AuthenticationInput) error {
	if v.apiKey == "" {
		return nil
	}
	got := in.RequestValidationInput.Request.Header.Get(in.SecurityScheme.Name)
	if subtle.ConstantTimeCompare([]byte(got), []byte(v.apiKey)) != 1 {
		return errUnauthorized
	}
	return nil
}

func (v *validator) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, params, err := v.router.FindRoute(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		err = openapi3filter.ValidateRequest(r.Context(), &openapi3filter.RequestValidationInput{
			Request:    r,
			PathParams: params,
			Route:      route,
			Options: &openapi3filter.Options{
				AuthenticationFunc: v.authenticate,
			},
		})
		if err != nil {
			var secErr *openapi3filter.SecurityRequirementsError
			if errors.As(err, &secErr) {
				writeError(w, http.StatusUnauthorized, errUnauthorized)
				return
			}
			writeError(w, http.StatusBadRequest, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}
