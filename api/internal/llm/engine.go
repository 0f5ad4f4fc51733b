// Package llm wraps the hosted multimodal models the extractor talks to.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Request is one multimodal call: a fixed instruction, the image and an optional question.
type Request struct {
	Instruction string
	Image       []byte
	MIME        string
	Question    string

	// JSONSchema asks the engine for a strict JSON answer when it supports one.
	JSONSchema json.RawMessage

	// ModelOverride replaces the engine's default model for this call.
	ModelOverride string
}

type Engine interface {
	Name() string
	GetModel() string
	Generate(ctx context.Context, req Request) (string, error)
}

// Engines is the set of configured engines, keyed by name.
type Engines struct {
	m map[string]Engine
}

func NewEngines(list ...Engine) *Engines {
	e := &Engines{m: map[string]Engine{}}
	for _, eng := range list {
		if eng != nil {
			e.m[eng.Name()] = eng
		}
	}
	return e
}

// GetEngine resolves a name; "openai" is accepted for the gpt engine.
func (e *Engines) GetEngine(name string) (Engine, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "openai" {
		n = "gpt"
	}
	if eng, ok := e.m[n]; ok {
		return eng, nil
	}
	return nil, fmt.Errorf("unknown engine %q (available: %s)", name, strings.Join(e.Names(), ", "))
}

func (e *Engines) Names() []string {
	out := make([]string, 0, len(e.m))
	for n := range e.m {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Manager holds a default engine and per-conversation overrides.
type Manager struct {
	def Engine
	m   sync.Map // conversation id -> Engine
}

func NewManager(defaultEngine Engine) *Manager {
	return &Manager{def: defaultEngine}
}

func (m *Manager) Get(id int64) Engine {
	if v, ok := m.m.Load(id); ok {
		return v.(Engine)
	}
	return m.def
}

func (m *Manager) Set(id int64, e Engine) {
	m.m.Store(id, e)
}

func (m *Manager) Default() Engine { return m.def }

type modelOverride struct {
	Engine
	model string
}

// WithModel returns e pinned to model, leaving e itself untouched.
func WithModel(e Engine, model string) Engine {
	model = strings.TrimSpace(model)
	if e == nil || model == "" {
		return e
	}
	return &modelOverride{Engine: e, model: model}
}

func (m *modelOverride) GetModel() string { return m.model }

func (m *modelOverride) Generate(ctx context.Context, req Request) (string, error) {
	if req.ModelOverride == "" {
		req.ModelOverride = m.model
	}
	return m.Engine.Generate(ctx, req)
}
