// Package response provides unified API response structures.
// This package defines standard response formats for HTTP APIs,
// ensuring consistent response structures across all endpoints.
package response

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/bdlaw/pkg/infra/middleware/common"
	"github.com/kart-io/bdlaw/pkg/utils/errors"
)

// Response is the unified API response structure.
type Response struct {
	// Code is the business error code (0 = success)
	Code int `json:"code"`

	// HTTPCode is the HTTP status code (optional, for client convenience)
	HTTPCode int `json:"http_code,omitempty"`

	// Message is a human-readable message
	Message string `json:"message"`

	// Data contains the response payload (nil for errors)
	Data any `json:"data,omitempty"`

	// RequestID is the unique request identifier for tracing
	RequestID string `json:"request_id,omitempty"`

	// Timestamp is the response timestamp (Unix milliseconds)
	Timestamp int64 `json:"timestamp,omitempty"`
}

// Success creates a successful response with data.
func Success(data any) *Response {
	return &Response{
		Code:     0,
		HTTPCode: http.StatusOK,
		Message:  "success",
		Data:     data,
	}
}

// Err creates an error response from an Errno type.
func Err(e *errors.Errno) *Response {
	return ErrWithLang(e, "en")
}

// ErrWithLang creates an error response with language-specific message.
func ErrWithLang(e *errors.Errno, lang string) *Response {
	if e == nil {
		return Success(nil)
	}
	return &Response{
		Code:     e.Code,
		HTTPCode: e.HTTPStatus(),
		Message:  e.Message(lang),
	}
}

// HTTPStatus returns the appropriate HTTP status code for this response.
func (r *Response) HTTPStatus() int {
	if r.HTTPCode != 0 {
		return r.HTTPCode
	}
	if r.Code == 0 {
		return http.StatusOK
	}
	if e, ok := errors.Lookup(r.Code); ok {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}

func stamp(c *gin.Context, r *Response) *Response {
	r.RequestID = common.GetRequestID(c.Request.Context())
	r.Timestamp = time.Now().UnixMilli()
	return r
}

// OK writes a successful JSON response.
func OK(c *gin.Context, data any) {
	resp := stamp(c, Success(data))
	c.JSON(resp.HTTPStatus(), resp)
}

// Fail writes an error response. Errors that are not an Errno are reported
// as ErrInternal.
func Fail(c *gin.Context, err error) {
	FailWithLang(c, err, "en")
}

// FailWithLang writes an error response using the message for lang.
func FailWithLang(c *gin.Context, err error, lang string) {
	e := errors.FromError(err)
	resp := stamp(c, ErrWithLang(e, lang))
	c.AbortWithStatusJSON(e.HTTPStatus(), resp)
}
