package handle

import (
	"errors"
	"net/http"

	"invoice-extractor/api/internal/interactive"
)

func (h *Handle) Ask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	if h.ask == nil {
		writeError(w, http.StatusNotImplemented, "question answering is not configured")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	req, err := readUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	eng := h.ask.Engine()
	if req.LLMName != "" && h.engs != nil {
		e, err := h.engs.GetEngine(req.LLMName)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		eng = e
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	ans, err := h.ask.AskWith(ctx, eng, interactive.Upload{Data: req.data, MIME: req.Mime, FileName: req.FileName}, req.Question)
	switch {
	case errors.Is(err, interactive.ErrNoFile):
		writeError(w, http.StatusBadRequest, noFileText)
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeJSON(w, http.StatusOK, ans)
	}
}
