package handle

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"invoice-extractor/api/internal/extract"
	"invoice-extractor/api/internal/interactive"
	"invoice-extractor/api/internal/llm"
	"invoice-extractor/api/internal/pipeline"
)

type fakeExtractor struct {
	gotName string
	gotData []byte
	written []string
	keys    []string
	err     error
}

func (f *fakeExtractor) Extract(_ context.Context, name string, data []byte) (pipeline.Document, error) {
	f.gotName, f.gotData = name, data
	if f.err != nil {
		return pipeline.Document{}, f.err
	}
	known := extract.NewFields()
	known.Set("UHID", extract.Str("1"))
	return pipeline.Document{FileName: name, Known: known, Extra: extract.NewFields()}, nil
}

func (f *fakeExtractor) Write(_ context.Context, key string, _ pipeline.Document) (string, error) {
	f.written = append(f.written, key)
	return pipeline.OutputKey("json_files/", key), nil
}

func (f *fakeExtractor) HandleBatch(_ context.Context, keys []string) pipeline.BatchResult {
	f.keys = keys
	return pipeline.BatchResult{Message: pipeline.BatchMessage, Results: []string{"ok"}}
}

type fakeEngine struct {
	name, text string
	err        error
}

func (f *fakeEngine) Name() string     { return f.name }
func (f *fakeEngine) GetModel() string { return f.name + "-model" }
func (f *fakeEngine) Generate(context.Context, llm.Request) (string, error) {
	return f.text, f.err
}

type fakeDB struct{ err error }

func (f fakeDB) PingContext(context.Context) error { return f.err }

var jpeg = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0x10, 'J', 'F', 'I', 'F'}

func newHandle(ext *fakeExtractor, persist bool) *Handle {
	gem := &fakeEngine{name: "gemini", text: "from gemini"}
	gpt := &fakeEngine{name: "gpt", text: "from gpt"}
	return New(Options{
		Extractor: ext,
		Asker:     interactive.New(interactive.Config{Engine: gem}),
		Engines:   llm.NewEngines(gem, gpt),
		Persist:   persist,
	})
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body is not JSON: %q", rec.Body.String())
	}
	return body["error"]
}

func TestHealthz(t *testing.T) {
	t.Run("no db", func(t *testing.T) {
		rec := httptest.NewRecorder()
		New(Options{}).Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
			t.Errorf("got %d %q", rec.Code, rec.Body.String())
		}
	})
	t.Run("db down", func(t *testing.T) {
		rec := httptest.NewRecorder()
		New(Options{DB: fakeDB{err: errors.New("refused")}}).Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("code = %d", rec.Code)
		}
	})
}

func TestExtract(t *testing.T) {
	t.Run("json body", func(t *testing.T) {
		ext := &fakeExtractor{}
		body := `{"file_name":"inv.jpg","image_b64":"` + base64.StdEncoding.EncodeToString(jpeg) + `"}`
		rec := httptest.NewRecorder()
		newHandle(ext, true).Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/extract", strings.NewReader(body)))
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %d body = %s", rec.Code, rec.Body.String())
		}
		if ext.gotName != "inv.jpg" || !bytes.Equal(ext.gotData, jpeg) {
			t.Errorf("extractor got %q %v", ext.gotName, ext.gotData)
		}
		if got := rec.Header().Get("X-Output-Key"); got != "json_files/inv.json" {
			t.Errorf("X-Output-Key = %q", got)
		}
		if !strings.HasPrefix(rec.Body.String(), `{"file_name":"inv.jpg","UHID":"1"`) {
			t.Errorf("body = %s", rec.Body.String())
		}
	})

	t.Run("multipart", func(t *testing.T) {
		ext := &fakeExtractor{}
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, _ := mw.CreateFormFile("file", "scan.jpg")
		_, _ = fw.Write(jpeg)
		_ = mw.Close()
		req := httptest.NewRequest(http.MethodPost, "/v1/extract", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := httptest.NewRecorder()
		newHandle(ext, false).Routes().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK || ext.gotName != "scan.jpg" {
			t.Fatalf("code = %d name = %q", rec.Code, ext.gotName)
		}
		if len(ext.written) != 0 {
			t.Error("document must not be written without persist")
		}
	})

	tests := []struct {
		name   string
		method string
		body   string
		err    error
		code   int
	}{
		{"wrong method", http.MethodGet, "", nil, http.StatusMethodNotAllowed},
		{"bad json", http.MethodPost, "{", nil, http.StatusBadRequest},
		{"bad base64", http.MethodPost, `{"image_b64":"***"}`, nil, http.StatusBadRequest},
		{"no file", http.MethodPost, `{}`, nil, http.StatusBadRequest},
		{"undecodable", http.MethodPost, `{"image_b64":"aGVsbG8="}`, errors.New("decode upload: bad"), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newHandle(&fakeExtractor{err: tt.err}, false).Routes().ServeHTTP(rec, httptest.NewRequest(tt.method, "/v1/extract", strings.NewReader(tt.body)))
			if rec.Code != tt.code {
				t.Errorf("code = %d, want %d", rec.Code, tt.code)
			}
			if decodeError(t, rec) == "" {
				t.Error("expected an error message")
			}
		})
	}
}

func TestAsk(t *testing.T) {
	img := base64.StdEncoding.EncodeToString(jpeg)
	tests := []struct {
		name     string
		body     string
		code     int
		wantText string
	}{
		{"default engine", `{"image_b64":"` + img + `","question":"total?"}`, http.StatusOK, "from gemini"},
		{"engine switch", `{"image_b64":"` + img + `","question":"total?","llm_name":"openai"}`, http.StatusOK, "from gpt"},
		{"unknown engine", `{"image_b64":"` + img + `","llm_name":"bard"}`, http.StatusBadRequest, ""},
		{"no file", `{"question":"total?"}`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newHandle(&fakeExtractor{}, false).Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(tt.body)))
			if rec.Code != tt.code {
				t.Fatalf("code = %d, want %d (%s)", rec.Code, tt.code, rec.Body.String())
			}
			if tt.code != http.StatusOK {
				return
			}
			var ans interactive.Answer
			if err := json.Unmarshal(rec.Body.Bytes(), &ans); err != nil {
				t.Fatal(err)
			}
			if ans.Text != tt.wantText {
				t.Errorf("text = %q, want %q", ans.Text, tt.wantText)
			}
		})
	}

	t.Run("no file message", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newHandle(&fakeExtractor{}, false).Ask(rec, httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{}`)))
		if msg := decodeError(t, rec); msg != "No file uploaded" {
			t.Errorf("error = %q", msg)
		}
	})

	t.Run("model failure", func(t *testing.T) {
		h := New(Options{Asker: interactive.New(interactive.Config{Engine: &fakeEngine{name: "gemini", err: errors.New("boom")}})})
		rec := httptest.NewRecorder()
		h.Ask(rec, httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"image_b64":"`+img+`"}`)))
		if rec.Code != http.StatusBadGateway {
			t.Errorf("code = %d", rec.Code)
		}
	})
}

func TestS3Event(t *testing.T) {
	ext := &fakeExtractor{}
	body := `{"Records":[{"s3":{"bucket":{"name":"in"},"object":{"key":"a.png"}}},{"s3":{"object":{"key":"b%zz.png"}}},{"s3":{"object":{"key":"c+d.png"}}}]}`
	rec := httptest.NewRecorder()
	newHandle(ext, false).Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/events/s3", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if strings.Join(ext.keys, ",") != "a.png,b%zz.png,c d.png" {
		t.Errorf("keys = %v", ext.keys)
	}
	var res pipeline.BatchResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil || res.Message != "Processing complete" {
		t.Errorf("result = %+v, %v", res, err)
	}
}
