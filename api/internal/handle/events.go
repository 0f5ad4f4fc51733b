package handle

import (
	"encoding/json"
	"net/http"

	"invoice-extractor/api/internal/pipeline"
)

// S3Event accepts an S3 notification body and processes every record like the storage trigger does.
func (h *Handle) S3Event(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	if h.ext == nil {
		writeError(w, http.StatusNotImplemented, "extraction is not configured")
		return
	}
	var ev pipeline.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "bad json: "+err.Error())
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()

	writeJSON(w, http.StatusOK, h.ext.HandleBatch(ctx, ev.Keys()))
}
