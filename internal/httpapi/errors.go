package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeValidation  = "validation"
	CodeNotFound    = "not_found"
	CodeConflict    = "conflict"
	CodeUnavailable = "unavailable"
	CodeInternal    = "internal"
)

type apiError struct {
	Code      string
	Message   string
	Transient bool
	Status    int
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func statusForCode(code string) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func newError(code, msg string, transient bool) *apiError {
	return &apiError{Code: code, Message: msg, Transient: transient, Status: statusForCode(code)}
}

func errValidation(msg string) *apiError { return newError(CodeValidation, msg, false) }
func errNotFound(msg string) *apiError { return newError(CodeNotFound, msg, false) }
func errConflict(msg string) *apiError { return newError(CodeConflict, msg, true) }

func writeError(c *gin.Context, err error) {
	var ae *apiError
	if !errors.As(err, &ae) {
		ae = newError(CodeInternal, err.Error(), true)
	}
	c.AbortWithStatusJSON(ae.Status, gin.H{
		"ok": false,
		"error": gin.H{
			"code":      ae.Code,
			"message":   ae.Message,
			"transient": ae.Transient,
		},
	})
}
