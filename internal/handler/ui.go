package handler

import (
	_ "embed"
	"net/http"
)

//go:embed web/index.html
var indexPage []byte

// handleIndex serves the interactive page.
func handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexPage)
}
