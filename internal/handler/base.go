package handler

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/jwalitptl/provider-api/pkg/errors"
)

// BindError converts a gin binding failure into an error ErrorHandler can
// render. Validator and body-size errors keep their own classification.
func BindError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return err
	}
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return err
	}
	return apperrors.BadRequest("malformed request", err)
}
