package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"damage-assessor/api/internal/damage"
)

var (
	// ErrUpstream: провайдер ответил ошибкой или не ответил вовсе.
	ErrUpstream      = errors.New("upstream model error")
	ErrUnknownEngine = errors.New("unknown engine")
)

// Image: снимок, подготовленный к отправке в модель.
type Image struct {
	Data []byte
	MIME string
	Name string
}

type Engine interface {
	Name() string
	GetModel() string
	Analyze(ctx context.Context, img Image) (damage.AnalysisResult, error)
}

// Engines: набор сконфигурированных движков.
type Engines struct {
	def  string
	byID map[string]Engine
}

func NewEngines(def string, engs ...Engine) *Engines {
	e := &Engines{def: strings.ToLower(strings.TrimSpace(def)), byID: make(map[string]Engine, len(engs))}
	for _, eng := range engs {
		if eng == nil {
			continue
		}
		e.byID[eng.Name()] = eng
	}
	return e
}

func (e *Engines) GetEngine(llmName string) (Engine, error) {
	name := strings.ToLower(strings.TrimSpace(llmName))
	if name == "" {
		name = e.def
	}
	switch name {
	case "gpt":
		name = "openai"
	case "google":
		name = "gemini"
	}
	if eng, ok := e.byID[name]; ok {
		return eng, nil
	}
	return nil, fmt.Errorf("%w %q; use one of: %s", ErrUnknownEngine, llmName, strings.Join(e.Names(), " | "))
}

func (e *Engines) Default() (Engine, error) { return e.GetEngine("") }

func (e *Engines) Names() []string {
	out := make([]string, 0, len(e.byID))
	for n := range e.byID {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Manager хранит выбранный движок для каждого чата.
type Manager struct {
	def Engine
	m   sync.Map // chatID -> Engine
}

func NewManager(defaultEngine Engine) *Manager {
	return &Manager{def: defaultEngine}
}

func (m *Manager) Get(chatID int64) Engine {
	if v, ok := m.m.Load(chatID); ok {
		return v.(Engine)
	}
	return m.def
}

func (m *Manager) Set(chatID int64, e Engine) {
	m.m.Store(chatID, e)
}
