package http

import (
	"net/http"

	"github.com/screenleads/backend/pkg/transport"
)

// apiDocument is a minimal OpenAPI description of the routes served here.
var apiDocument = map[string]any{
	"openapi": "3.0.3",
	"info": map[string]any{
		"title":   "screenleads backend",
		"version": "1.0.0",
	},
	"components": map[string]any{
		"securitySchemes": map[string]any{
			"bearerAuth": map[string]any{"type": "http", "scheme": "bearer", "bearerFormat": "JWT"},
			"apiKey":     map[string]any{"type": "apiKey", "in": "header", "name": "X-API-KEY"},
		},
	},
	"paths": map[string]any{
		"/auth/login":    map[string]any{"post": map[string]any{"summary": "Exchange username and password for a token"}},
		"/auth/register": map[string]any{"post": map[string]any{"summary": "Create an account"}},
		"/auth/me":       map[string]any{"get": map[string]any{"summary": "Current account"}},
		"/auth/refresh":  map[string]any{"post": map[string]any{"summary": "Issue a fresh token"}},
		"/api/companies": map[string]any{"get": map[string]any{"summary": "Companies visible to the caller"}},
		"/api/devices":   map[string]any{"get": map[string]any{"summary": "Devices visible to the caller"}},
		"/ws/status":     map[string]any{"get": map[string]any{"summary": "Realtime subscriber counts"}},
	},
}

func serveAPIDocs(w http.ResponseWriter, r *http.Request) {
	transport.WriteJSON(w, http.StatusOK, apiDocument)
}

const swaggerPage = `<!DOCTYPE html>
<html>
<head><title>screenleads API</title></head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
<script>SwaggerUIBundle({url: "/v3/api-docs", dom_id: "#swagger-ui"});</script>
</body>
</html>
`

func serveSwaggerUI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(swaggerPage))
}

func redirectSwagger(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/swagger-ui/index.html", http.StatusFound)
}
