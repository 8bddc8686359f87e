// Package handler exposes the services over HTTP with gin.
package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"aegisher/api/internal/apperr"
	"aegisher/api/internal/logger"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// respondError maps an error to its status. Unexpected failures echo the cause in message.
func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		c.JSON(status, ErrorResponse{Error: apperr.Message(err), Message: apperr.Cause(err)})
		return
	}
	c.JSON(status, ErrorResponse{Error: apperr.Message(err)})
}

func init() {
	// report validation failures by json field name
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	}
}

// bindJSON decodes and validates the body into dst. An empty body leaves dst at its zero value.
func bindJSON(c *gin.Context, dst interface{}) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}

	var invalid validator.ValidationErrors
	if errors.As(err, &invalid) && len(invalid) > 0 {
		respondError(c, apperr.Validation("%s", validationMessage(invalid[0])))
	} else {
		respondError(c, apperr.Validation("Invalid request body: %s", err.Error()))
	}
	return false
}

// validationMessage renders one failed binding rule
func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "max":
		return fmt.Sprintf("%s cannot exceed %s characters", title(fe.Field()), fe.Param())
	case "oneof", "email":
		return fmt.Sprintf("Invalid %s: %v", fe.Field(), fe.Value())
	}
	return fmt.Sprintf("Invalid %s", fe.Field())
}

func title(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// queryFloat parses an optional numeric query parameter. Absent or blank yields nil.
func queryFloat(c *gin.Context, key string) (*float64, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil {
		return nil, apperr.Validation("%s must be a number", key)
	}
	return &v, nil
}

// queryFloats parses several optional numeric query parameters in order
func queryFloats(c *gin.Context, keys ...string) ([]*float64, error) {
	out := make([]*float64, len(keys))
	for i, k := range keys {
		v, err := queryFloat(c, k)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// queryInt parses a whole-number query parameter, falling back to def when absent, invalid or not positive
func queryInt(c *gin.Context, key string, def int) int {
	v, err := cast.ToFloat64E(strings.TrimSpace(c.Query(key)))
	if err != nil || v < 1 {
		return def
	}
	return int(v)
}
