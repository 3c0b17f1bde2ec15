package assess

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"damage-assessor/api/internal/cache"
	"damage-assessor/api/internal/damage"
	"damage-assessor/api/internal/llm"
	"damage-assessor/api/internal/session"
	"damage-assessor/api/internal/store"
	"damage-assessor/api/internal/util"
)

var (
	ErrNoImage  = errors.New("no image provided")
	ErrBadImage = errors.New("image is not valid base64")
	ErrNotImage = errors.New("file is not an image")
)

// Cache: кэш ответов модели (Redis в проде).
type Cache interface {
	Get(ctx context.Context, key string) (damage.AnalysisResult, bool, error)
	Set(ctx context.Context, key string, res damage.AnalysisResult) error
}

type Options struct {
	Cache Cache
	Store store.Store
	// CacheTTL ограничивает возраст записи истории, годной вместо вызова модели.
	CacheTTL time.Duration
}

// Service: декодирование снимка, выбор движка, кэш, вызов модели, запись в историю.
type Service struct {
	engines  *llm.Engines
	cache    Cache
	store    store.Store
	cacheTTL time.Duration

	wg sync.WaitGroup
}

var _ session.Analyzer = (*Service)(nil)

func New(engs *llm.Engines, opt Options) *Service {
	return &Service{
		engines:  engs,
		cache:    opt.Cache,
		store:    opt.Store,
		cacheTTL: opt.CacheTTL,
	}
}

type Request struct {
	ImageBase64 string `json:"imageBase64"`
	ImageName   string `json:"imageName"`
	Engine      string `json:"engine,omitempty"`
	SessionID   string `json:"-"`
}

type Outcome struct {
	Result    damage.AnalysisResult
	Engine    string
	Model     string
	ImageHash string
	Cached    bool
}

// Decode превращает base64/data:URI в Upload; MIME берётся из префикса или по байтам.
func Decode(imageBase64, name string) (session.Upload, error) {
	if strings.TrimSpace(imageBase64) == "" {
		return session.Upload{}, ErrNoImage
	}
	data, hint, err := util.DecodeBase64MaybeDataURL(imageBase64)
	if err != nil {
		return session.Upload{}, fmt.Errorf("%w: %v", ErrBadImage, err)
	}
	if len(data) == 0 {
		return session.Upload{}, ErrNoImage
	}
	mime := util.PickMIME("", hint, data)
	if !util.IsImageMIME(mime) {
		return session.Upload{}, fmt.Errorf("%w: %s", ErrNotImage, mime)
	}
	return session.Upload{Name: name, Data: data, MIME: mime}, nil
}

func (s *Service) Analyze(ctx context.Context, req Request) (Outcome, error) {
	up, err := Decode(req.ImageBase64, req.ImageName)
	if err != nil {
		return Outcome{}, err
	}
	up.Engine = req.Engine
	up.SessionID = req.SessionID
	return s.analyze(ctx, up)
}

// AnalyzeUpload: вход для session.Orchestrator.
func (s *Service) AnalyzeUpload(ctx context.Context, up session.Upload) (damage.ImageAnalysis, error) {
	out, err := s.analyze(ctx, up)
	if err != nil {
		return damage.ImageAnalysis{}, err
	}
	return damage.ImageAnalysis{
		ImageName:        up.Name,
		ImageHash:        out.ImageHash,
		Engine:           out.Engine,
		Damages:          out.Result.Damages,
		OverallCondition: out.Result.OverallCondition,
		Message:          out.Result.Message,
	}, nil
}

func (s *Service) analyze(ctx context.Context, up session.Upload) (Outcome, error) {
	if len(up.Data) == 0 {
		return Outcome{}, ErrNoImage
	}
	mime := util.PickMIME("", up.MIME, up.Data)
	if !util.IsImageMIME(mime) {
		return Outcome{}, fmt.Errorf("%w: %s", ErrNotImage, mime)
	}
	eng, err := s.engines.GetEngine(up.Engine)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{
		Engine:    eng.Name(),
		Model:     eng.GetModel(),
		ImageHash: util.SHA256Hex(up.Data),
	}
	key := cache.Key(out.ImageHash, out.Engine, out.Model)

	if res, ok := s.lookup(ctx, key, out); ok {
		out.Result, out.Cached = res, true
		return out, nil
	}

	start := time.Now()
	res, err := eng.Analyze(ctx, llm.Image{Data: up.Data, MIME: mime, Name: up.Name})
	if err != nil {
		return Outcome{}, fmt.Errorf("analyze via %s: %w", eng.Name(), err)
	}
	log.Printf("[INFO] analyzed %q via %s/%s: %d damages, %s (%s)",
		up.Name, out.Engine, out.Model, len(res.Damages), res.OverallCondition, time.Since(start).Round(time.Millisecond))
	out.Result = res
	if llm.IsFallback(res) {
		// повторная попытка должна снова дойти до модели
		log.Printf("[WARN] %q via %s: unparsable reply, not cached", up.Name, out.Engine)
		return out, nil
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, res); err != nil {
			log.Printf("[WARN] cache set: %v", err)
		}
	}
	s.persist(ctx, store.NewRecord(up.SessionID, up.Name, out.ImageHash, out.Engine, out.Model, res))
	return out, nil
}

func (s *Service) lookup(ctx context.Context, key string, out Outcome) (damage.AnalysisResult, bool) {
	if s.cache != nil {
		res, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			log.Printf("[WARN] cache get: %v", err)
		}
		if ok {
			return res, true
		}
	}
	if s.store != nil {
		rec, err := s.store.FindByHash(ctx, out.ImageHash, out.Engine, out.Model, s.cacheTTL)
		if err == nil {
			if s.cache != nil {
				_ = s.cache.Set(ctx, key, rec.Result)
			}
			return rec.Result, true
		}
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("[WARN] history lookup: %v", err)
		}
	}
	return damage.AnalysisResult{}, false
}

// persist пишет историю в фоне; ошибки только логируются.
func (s *Service) persist(ctx context.Context, rec store.Record) {
	if s.store == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.store.Save(ctx, rec); err != nil {
			log.Printf("[WARN] history save %s: %v", rec.ID, err)
		}
	}()
}

// Wait дожидается фоновых записей в историю.
func (s *Service) Wait() { s.wg.Wait() }

func (s *Service) Engines() *llm.Engines { return s.engines }

func (s *Service) Store() store.Store { return s.store }
