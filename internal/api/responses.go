package api

import (
	"encoding/json"
	"net/http"

	"github.com/snarg/mtcagent/internal/mtcxml"
	"github.com/snarg/mtcagent/internal/xmltree"
)

const (
	contentTypeXML = "text/xml; charset=utf-8"
	xmlDeclaration = `<?xml version="1.0" encoding="UTF-8"?>`
)

func writeXML(w http.ResponseWriter, status int, doc *xmltree.Node) {
	writeRawXML(w, status, doc.String())
}

func writeRawXML(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", contentTypeXML)
	w.WriteHeader(status)
	w.Write([]byte(xmlDeclaration))
	w.Write([]byte(body))
}

func writeMTCError(w http.ResponseWriter, h mtcxml.Header, status int, code, message string) {
	writeXML(w, status, mtcxml.Error(h, code, message))
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
