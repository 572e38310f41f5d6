package handlers

import (
	"errors"
	"net/http"
	"strings"

	"storeadmin/internal/catalog"
	"storeadmin/internal/common"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// RequestValidator plugs validator/v10 into echo's c.Validate.
type RequestValidator struct {
	validate *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	return &RequestValidator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

func (v *RequestValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

// bindAndValidate decodes the body into req and writes a 400 response on failure.
// It returns false when the handler should stop.
func bindAndValidate(c echo.Context, req interface{}) (bool, error) {
	if err := c.Bind(req); err != nil {
		return false, common.SendClientError(c, "Invalid request body")
	}
	if err := c.Validate(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			details := make(map[string]string, len(fieldErrs))
			for _, fe := range fieldErrs {
				details[strings.ToLower(fe.Field())] = fe.Tag()
			}
			return false, c.JSON(http.StatusBadRequest, common.CreateErrorResponse("VALIDATION_ERROR", "Validation failed", details))
		}
		return false, common.SendValidationError(c, "body", err.Error())
	}
	return true, nil
}

// sendCatalogError maps a failed catalog call onto the response.
func sendCatalogError(c echo.Context, action string, err error) error {
	var apiErr *catalog.APIError
	if errors.As(err, &apiErr) {
		c.Logger().Warnf("%s: catalog returned %d", action, apiErr.Status)
		if apiErr.Status == http.StatusNotFound {
			return common.SendNotFoundError(c, "Resource")
		}
		return common.SendUpstreamError(c, action+": catalog returned "+http.StatusText(apiErr.Status))
	}
	if errors.Is(err, catalog.ErrMissingID) {
		return common.SendValidationError(c, "_id", "is required")
	}
	c.Logger().Errorf("%s: %v", action, err)
	return common.SendUpstreamError(c, action+": catalog unavailable")
}
