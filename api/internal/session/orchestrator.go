package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"damage-assessor/api/internal/damage"
)

// FailedMessage: текст ошибки в записи снимка, подробности уходят в лог.
const FailedMessage = "Analysis failed"

// Upload: один снимок на анализ.
type Upload struct {
	Name      string
	Data      []byte
	MIME      string
	Engine    string
	SessionID string
}

// Analyzer выполняет анализ одного снимка. Возвращаемая запись
// несёт Engine, ImageHash и ответ модели; остальные поля игнорируются.
type Analyzer interface {
	AnalyzeUpload(ctx context.Context, up Upload) (damage.ImageAnalysis, error)
}

type Options struct {
	// Timeout на один снимок; 0: без ограничения.
	Timeout time.Duration
	// MaxRPS ограничивает частоту обращений к модели; 0: без ограничения.
	MaxRPS float64
}

// Orchestrator запускает анализ каждого снимка в своей горутине
// и складывает результаты в Session.
type Orchestrator struct {
	analyzer Analyzer
	timeout  time.Duration
	limiter  *rate.Limiter

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

func NewOrchestrator(a Analyzer, opt Options) *Orchestrator {
	o := &Orchestrator{analyzer: a, timeout: opt.Timeout}
	if opt.MaxRPS > 0 {
		burst := int(opt.MaxRPS)
		if burst < 1 {
			burst = 1
		}
		o.limiter = rate.NewLimiter(rate.Limit(opt.MaxRPS), burst)
	}
	o.base, o.stop = context.WithCancel(context.Background())
	return o
}

// Submit сразу публикует заглушку и возвращает её, анализ идёт в фоне.
// Отмена ctx фон не прерывает (HTTP-запрос завершается раньше анализа), только Stop.
func (o *Orchestrator) Submit(ctx context.Context, s *Session, up Upload) damage.ImageAnalysis {
	ph := o.publish(s, up)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.complete(context.WithoutCancel(ctx), s, ph.ID, up)
	}()
	return ph
}

// Run: синхронный вариант Submit: возвращает итоговую запись.
func (o *Orchestrator) Run(ctx context.Context, s *Session, up Upload) damage.ImageAnalysis {
	ph := o.Publish(s, up)
	return o.Complete(ctx, s, ph.ID, up)
}

// Publish добавляет заглушку в конец сессии. Пакет снимков публикуется
// по порядку до запуска анализов, тогда номера в сессии совпадают с порядком загрузки.
func (o *Orchestrator) Publish(s *Session, up Upload) damage.ImageAnalysis {
	return o.publish(s, up)
}

// Complete синхронно анализирует снимок, ранее опубликованный через Publish.
func (o *Orchestrator) Complete(ctx context.Context, s *Session, id string, up Upload) damage.ImageAnalysis {
	o.wg.Add(1)
	defer o.wg.Done()
	return o.complete(ctx, s, id, up)
}

// Wait блокируется, пока не завершатся все запущенные анализы.
func (o *Orchestrator) Wait() { o.wg.Wait() }

// Stop отменяет незавершённые анализы и ждёт их.
func (o *Orchestrator) Stop() {
	o.stop()
	o.wg.Wait()
}

func (o *Orchestrator) publish(s *Session, up Upload) damage.ImageAnalysis {
	now := time.Now().UTC()
	ph := damage.ImageAnalysis{
		ID:               uuid.NewString(),
		ImageName:        up.Name,
		Engine:           up.Engine,
		Damages:          []damage.Damage{},
		OverallCondition: damage.ConditionFair,
		Loading:          true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	s.Add(ph)
	return ph
}

func (o *Orchestrator) complete(ctx context.Context, s *Session, id string, up Upload) damage.ImageAnalysis {
	ctx, cancel := o.scope(ctx)
	defer cancel()
	up.SessionID = s.ID

	var (
		res damage.ImageAnalysis
		err error
	)
	if o.limiter != nil {
		err = o.limiter.Wait(ctx)
	}
	if err == nil {
		res, err = o.analyzer.AnalyzeUpload(ctx, up)
	}

	apply := func(a *damage.ImageAnalysis) {
		if err != nil {
			a.Damages = []damage.Damage{}
			a.Loading = false
			a.Error = FailedMessage
		} else {
			a.Apply(damage.AnalysisResult{Damages: res.Damages, OverallCondition: res.OverallCondition, Message: res.Message})
			a.ImageHash = res.ImageHash
			if res.Engine != "" {
				a.Engine = res.Engine
			}
		}
		a.UpdatedAt = time.Now().UTC()
	}

	var final damage.ImageAnalysis
	ok := s.Update(id, func(a *damage.ImageAnalysis) {
		apply(a)
		final = clone(*a)
	})
	if !ok {
		// снимок удалили, пока шёл анализ: результат никуда не пишется
		final = damage.ImageAnalysis{ID: id, ImageName: up.Name, Engine: up.Engine}
		apply(&final)
		log.Printf("[INFO] image %s removed before analysis finished", id)
	}
	if err != nil {
		log.Printf("[WARN] analyze %q (session %s): %v", up.Name, s.ID, err)
	}
	return final
}

func (o *Orchestrator) scope(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stopAfter := context.AfterFunc(o.base, cancel)
	if o.timeout > 0 {
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeout(ctx, o.timeout)
		return ctx, func() {
			tcancel()
			stopAfter()
			cancel()
		}
	}
	return ctx, func() {
		stopAfter()
		cancel()
	}
}
