package handle

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"invoice-extractor/api/internal/imaging"
)

// uploadRequest is the JSON form of an upload. Multipart requests fill the same fields.
type uploadRequest struct {
	FileName string `json:"file_name"`
	ImageB64 string `json:"image_b64"`
	Mime     string `json:"mime"`
	Question string `json:"question"`
	LLMName  string `json:"llm_name"`

	data []byte
}

var errBadImage = errors.New("bad image_b64")

// readUpload accepts multipart/form-data with a "file" part or a JSON body.
func readUpload(r *http.Request) (*uploadRequest, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "multipart/form-data" {
		return readMultipart(r)
	}
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, fmt.Errorf("bad json: %w", err)
	}
	if strings.TrimSpace(req.ImageB64) != "" {
		data, hint, err := imaging.DecodeBase64MaybeDataURL(req.ImageB64)
		if err != nil {
			return nil, errBadImage
		}
		req.data = data
		if req.Mime == "" {
			req.Mime = hint
		}
	}
	return &req, nil
}

func readMultipart(r *http.Request) (*uploadRequest, error) {
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		return nil, fmt.Errorf("bad multipart form: %w", err)
	}
	req := &uploadRequest{
		Question: r.FormValue("question"),
		LLMName:  r.FormValue("llm_name"),
	}
	f, hdr, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bad file: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	req.data = data
	req.FileName = hdr.Filename
	req.Mime = hdr.Header.Get("Content-Type")
	return req, nil
}
