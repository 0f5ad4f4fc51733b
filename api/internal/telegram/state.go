package telegram

import (
	"sync"

	"invoice-extractor/api/internal/interactive"
)

const (
	modeAsk     = ""
	modeExtract = "extract"
)

// chatState keeps per-chat mode and the last upload still waiting for a question.
type chatState struct {
	mode    sync.Map // chatID -> string
	pending sync.Map // chatID -> interactive.Upload
}

func (s *chatState) setMode(chatID int64, mode string) {
	if mode == modeAsk {
		s.mode.Delete(chatID)
		return
	}
	s.mode.Store(chatID, mode)
}

func (s *chatState) getMode(chatID int64) string {
	if v, ok := s.mode.Load(chatID); ok {
		if m, _ := v.(string); m != "" {
			return m
		}
	}
	return modeAsk
}

func (s *chatState) park(chatID int64, up interactive.Upload) { s.pending.Store(chatID, up) }

func (s *chatState) pendingUpload(chatID int64) (interactive.Upload, bool) {
	v, ok := s.pending.Load(chatID)
	if !ok {
		return interactive.Upload{}, false
	}
	return v.(interactive.Upload), true
}
