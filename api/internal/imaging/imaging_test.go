package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/jpeg"
	"image/png"
	"testing"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestPreparePayload(t *testing.T) {
	src, payload, err := PreparePayload(pngBytes(t, 1200, 300), PayloadWidth, PayloadHeight)
	if err != nil {
		t.Fatalf("PreparePayload: %v", err)
	}
	if b := src.Bounds(); b.Dx() != 1200 || b.Dy() != 300 {
		t.Errorf("source bounds changed: %v", b)
	}
	out, err := png.Decode(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("payload is not png: %v", err)
	}
	if b := out.Bounds(); b.Dx() != PayloadWidth || b.Dy() != PayloadHeight {
		t.Errorf("payload bounds = %v, want 800x800", b)
	}
}

func TestDecode(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		if _, _, err := Decode(bytes.NewReader(nil)); err != ErrEmptyImage {
			t.Errorf("expected ErrEmptyImage, got %v", err)
		}
	})
	t.Run("jpeg", func(t *testing.T) {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4)), nil); err != nil {
			t.Fatal(err)
		}
		_, format, err := Decode(&buf)
		if err != nil || format != "jpeg" {
			t.Errorf("Decode = %q, %v", format, err)
		}
	})
	t.Run("garbage", func(t *testing.T) {
		if _, _, err := Decode(bytes.NewReader([]byte("garbage"))); err == nil {
			t.Error("expected error")
		}
	})
}

func TestSniffMime(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"png", pngBytes(t, 1, 1), MimePNG},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, MimeJPEG},
		{"pdf", []byte("%PDF-1.7\n"), MimePDF},
		{"empty", nil, "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SniffMime(tt.data); got != tt.want {
				t.Errorf("SniffMime = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeBase64MaybeDataURL(t *testing.T) {
	raw := []byte("hello")
	enc := base64.StdEncoding.EncodeToString(raw)

	b, mime, err := DecodeBase64MaybeDataURL("data:image/png;base64," + enc)
	if err != nil || string(b) != "hello" || mime != "image/png" {
		t.Errorf("data url: %q %q %v", b, mime, err)
	}
	b, mime, err = DecodeBase64MaybeDataURL("  " + enc + "\n")
	if err != nil || string(b) != "hello" || mime != "" {
		t.Errorf("plain: %q %q %v", b, mime, err)
	}
	if _, _, err := DecodeBase64MaybeDataURL("%%%"); err == nil {
		t.Error("expected error for bad base64")
	}
}

func TestPickMIME(t *testing.T) {
	if got := PickMIME(" image/webp ", "image/png", nil); got != "image/webp" {
		t.Errorf("explicit: %q", got)
	}
	if got := PickMIME("", "image/png", nil); got != "image/png" {
		t.Errorf("hint: %q", got)
	}
	if got := PickMIME("", "", []byte("%PDF-1.4")); got != MimePDF {
		t.Errorf("sniff: %q", got)
	}
	if got := PickMIME("", "", nil); got != MimeJPEG {
		t.Errorf("default: %q", got)
	}
}
