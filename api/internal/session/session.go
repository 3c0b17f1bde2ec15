package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"damage-assessor/api/internal/damage"
)

var ErrNotFound = errors.New("session not found")

// Session: упорядоченный список анализов снимков одного пользователя.
// Все операции безопасны для конкурентного вызова.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu     sync.RWMutex
	images []damage.ImageAnalysis

	lastUsed atomic.Int64 // unix nano, для Registry.Sweep
}

func New(id string) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	s := &Session{ID: id, CreatedAt: time.Now().UTC()}
	s.touch()
	return s
}

func (s *Session) touch() { s.lastUsed.Store(time.Now().UnixNano()) }

// IdleFor: сколько времени к сессии не обращались через Registry и Add.
func (s *Session) IdleFor() time.Duration {
	return time.Since(time.Unix(0, s.lastUsed.Load()))
}

func (s *Session) Add(a damage.ImageAnalysis) {
	s.touch()
	s.mu.Lock()
	s.images = append(s.images, a)
	s.mu.Unlock()
}

// Update применяет fn к записи с данным id. Если записи уже нет, ничего не делает.
func (s *Session) Update(id string, fn func(a *damage.ImageAnalysis)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.images {
		if s.images[i].ID == id {
			fn(&s.images[i])
			return true
		}
	}
	return false
}

func (s *Session) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.images {
		if s.images[i].ID == id {
			s.images = append(s.images[:i], s.images[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveAt удаляет n-й снимок (с единицы), как его видит пользователь.
func (s *Session) RemoveAt(n int) (damage.ImageAnalysis, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 1 || n > len(s.images) {
		return damage.ImageAnalysis{}, false
	}
	a := s.images[n-1]
	s.images = append(s.images[:n-1], s.images[n:]...)
	return a, true
}

// Index возвращает номер снимка (с 1) в текущем порядке сессии, 0 если его нет.
func (s *Session) Index(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.images {
		if s.images[i].ID == id {
			return i + 1
		}
	}
	return 0
}

func (s *Session) Get(id string) (damage.ImageAnalysis, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.images {
		if a.ID == id {
			return clone(a), true
		}
	}
	return damage.ImageAnalysis{}, false
}

func (s *Session) Reset() {
	s.mu.Lock()
	s.images = nil
	s.mu.Unlock()
}

func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.images)
}

// Pending: сколько снимков ещё в работе.
func (s *Session) Pending() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.images {
		if a.Loading {
			n++
		}
	}
	return n
}

// Snapshot возвращает копию списка; вызывающий может её менять.
func (s *Session) Snapshot() []damage.ImageAnalysis {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]damage.ImageAnalysis, len(s.images))
	for i, a := range s.images {
		out[i] = clone(a)
	}
	return out
}

func (s *Session) Report() damage.Report {
	return damage.Aggregate(s.Snapshot())
}

func clone(a damage.ImageAnalysis) damage.ImageAnalysis {
	a.Damages = append([]damage.Damage{}, a.Damages...)
	return a
}

// Registry: сессии по id. Без Sweep сессии живут до конца процесса.
type Registry struct {
	m sync.Map // id -> *Session
}

func NewRegistry() *Registry { return &Registry{} }

func (r *Registry) Create() *Session {
	s := New("")
	r.m.Store(s.ID, s)
	return s
}

func (r *Registry) Get(id string) (*Session, error) {
	if v, ok := r.m.Load(id); ok {
		s := v.(*Session)
		s.touch()
		return s, nil
	}
	return nil, ErrNotFound
}

// GetOrCreate: для чатов, где id сессии известен заранее.
func (r *Registry) GetOrCreate(id string) *Session {
	v, _ := r.m.LoadOrStore(id, New(id))
	s := v.(*Session)
	s.touch()
	return s
}

func (r *Registry) Delete(id string) bool {
	_, ok := r.m.LoadAndDelete(id)
	return ok
}

// Sweep удаляет сессии, простаивающие дольше idle. Сессии с незавершёнными
// анализами не трогает. Возвращает число удалённых.
func (r *Registry) Sweep(idle time.Duration) int {
	n := 0
	r.m.Range(func(k, v any) bool {
		s := v.(*Session)
		if s.IdleFor() > idle && s.Pending() == 0 {
			r.m.Delete(k)
			n++
		}
		return true
	})
	return n
}

// RunSweeper периодически вызывает Sweep до отмены ctx; idle <= 0 отключает очистку.
func (r *Registry) RunSweeper(ctx context.Context, idle time.Duration) {
	if idle <= 0 {
		return
	}
	t := time.NewTicker(max(idle/4, time.Second))
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := r.Sweep(idle); n > 0 {
				log.Printf("[INFO] sessions: expired %d idle", n)
			}
		}
	}
}
