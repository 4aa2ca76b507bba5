package service

import (
	"io"
	"net/http"
	"strings"

	"relaymux-go/internal/model"
)

// ErrorHandler converts a failed upstream exchange into the response the
// client receives. Resolver errors never reach it; those surface as errors
// from Handle.
type ErrorHandler func(err error) *model.ProxyResponse

// DefaultErrorHandler answers 502 Bad Gateway with the error text as a
// plain-text body.
func DefaultErrorHandler(err error) *model.ProxyResponse {
	header := make(http.Header)
	header.Set("Content-Type", "text/plain; charset=utf-8")
	return &model.ProxyResponse{
		StatusCode: http.StatusBadGateway,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(err.Error())),
	}
}
