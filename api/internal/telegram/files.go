package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"invoice-extractor/api/internal/imaging"
	"invoice-extractor/api/internal/interactive"
)

// maxDocumentSize is the largest document the Bot API lets bots download.
const maxDocumentSize = 20 << 20

// uploadFrom downloads the largest photo size or an image/PDF document attached to msg.
// ok is false when the message carries neither.
func (r *Router) uploadFrom(ctx context.Context, msg *tgbotapi.Message) (up interactive.Upload, ok bool, err error) {
	var fileID, name, mime string
	switch {
	case len(msg.Photo) > 0:
		ph := msg.Photo[len(msg.Photo)-1]
		fileID, name, mime = ph.FileID, ph.FileUniqueID+".jpg", imaging.MimeJPEG
	case msg.Document != nil:
		d := msg.Document
		if !acceptedDocument(d.MimeType) {
			return up, false, fmt.Errorf("unsupported file type %q: send an image or a PDF", d.MimeType)
		}
		if d.FileSize > maxDocumentSize {
			return up, false, fmt.Errorf("file is too large (%d bytes)", d.FileSize)
		}
		fileID, name, mime = d.FileID, d.FileName, d.MimeType
	default:
		return up, false, nil
	}

	url, err := r.Bot.GetFileDirectURL(fileID)
	if err != nil {
		return up, false, err
	}
	data, err := download(ctx, url)
	if err != nil {
		return up, false, err
	}
	return interactive.Upload{Data: data, MIME: mime, FileName: name}, true, nil
}

func acceptedDocument(mime string) bool {
	mime = strings.ToLower(strings.TrimSpace(mime))
	return mime == imaging.MimePDF || strings.HasPrefix(mime, "image/")
}

func download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}
	return io.ReadAll(resp.Body)
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}
