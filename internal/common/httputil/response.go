package httputil

import (
	"encoding/json"

	"github.com/valyala/fasthttp"
)

// APIResponse is the envelope every status API reply uses
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// JSONResponse writes resp with statusCode and returns the status actually
// written, so callers can record it. An unencodable body becomes a 500.
func JSONResponse(ctx *fasthttp.RequestCtx, statusCode int, resp APIResponse) int {
	body, err := json.Marshal(resp)
	if err != nil {
		statusCode = fasthttp.StatusInternalServerError
		body = []byte(`{"success":false,"message":"failed to encode response"}`)
	}
	ctx.SetStatusCode(statusCode)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
	return statusCode
}

// JSONError writes a failure envelope
func JSONError(ctx *fasthttp.RequestCtx, message string, statusCode int) int {
	return JSONResponse(ctx, statusCode, APIResponse{Message: message})
}

// JSONSuccess writes a success envelope without data
func JSONSuccess(ctx *fasthttp.RequestCtx, message string, statusCode int) int {
	return JSONResponse(ctx, statusCode, APIResponse{Success: true, Message: message})
}

// JSONData writes a success envelope carrying data
func JSONData(ctx *fasthttp.RequestCtx, data interface{}, statusCode int) int {
	return JSONResponse(ctx, statusCode, APIResponse{Success: true, Data: data})
}
