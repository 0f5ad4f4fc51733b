package handle

import (
	"net/http"
	"strings"
)

func (h *Handle) Extract(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	if h.ext == nil {
		writeError(w, http.StatusNotImplemented, "extraction is not configured")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	req, err := readUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.data) == 0 {
		writeError(w, http.StatusBadRequest, noFileText)
		return
	}
	name := strings.TrimSpace(req.FileName)
	if name == "" {
		name = "upload"
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	doc, err := h.ext.Extract(ctx, name, req.data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "extract error: "+err.Error())
		return
	}
	if h.persist {
		key, err := h.ext.Write(ctx, name, doc)
		if err != nil {
			writeError(w, http.StatusBadGateway, "store error: "+err.Error())
			return
		}
		w.Header().Set("X-Output-Key", key)
	}
	writeJSON(w, http.StatusOK, doc)
}
