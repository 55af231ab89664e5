// Package auth provides API key authentication for the dashboard's HTTP
// surface (REST API and WebSocket stream).
//
// Middleware(mode, header, key, open...) wraps an http.Handler. When mode is
// "apikey" and a key is configured, requests must carry the key in the
// configured header (default X-API-Key) or in the api_key query parameter.
// Paths passed as open (for example /metrics) are never checked.
package auth
