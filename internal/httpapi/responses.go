package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type apiEnvelope struct {
	Status  string         `json:"status"`
	Data    any            `json:"data,omitempty"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

func success(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, apiEnvelope{
		Status: "success",
		Data:   data,
	})
}

func fail(c echo.Context, status int, message string, details map[string]string) error {
	envelope := apiEnvelope{
		Status:  "error",
		Message: message,
	}
	if len(details) > 0 {
		envelope.Details = make(map[string]any, len(details))
		for key, value := range details {
			envelope.Details[key] = value
		}
	}
	return c.JSON(status, envelope)
}

func failValidation(c echo.Context, details map[string]string) error {
	return fail(c, http.StatusBadRequest, "Validation failed", details)
}

func failNotFound(c echo.Context, message string) error {
	return fail(c, http.StatusNotFound, message, nil)
}

func unauthorized(c echo.Context, message string) error {
	return fail(c, http.StatusUnauthorized, message, nil)
}

func internalError(c echo.Context, message string) error {
	return fail(c, http.StatusInternalServerError, message, nil)
}
