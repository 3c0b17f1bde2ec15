package assess_test

import (
	"context"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"damage-assessor/api/internal/assess"
	"damage-assessor/api/internal/damage"
	"damage-assessor/api/internal/llm"
	"damage-assessor/api/internal/session"
	"damage-assessor/api/internal/store"
)

var pngBytes = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D}

type fakeEngine struct {
	mu    sync.Mutex
	calls int
	last  llm.Image
	err   error
	res   damage.AnalysisResult
}

func (f *fakeEngine) Name() string     { return "deepseek" }
func (f *fakeEngine) GetModel() string { return "DEEPSEEK-REASONER" }
func (f *fakeEngine) Analyze(_ context.Context, img llm.Image) (damage.AnalysisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = img
	return f.res, f.err
}

type memCache struct {
	mu sync.Mutex
	m  map[string]damage.AnalysisResult
}

func (c *memCache) Get(_ context.Context, key string) (damage.AnalysisResult, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.m[key]
	return r, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, res damage.AnalysisResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = res
	return nil
}

func sampleResult() damage.AnalysisResult {
	return damage.AnalysisResult{
		Damages:          []damage.Damage{{Part: "headlight", DamageType: "broken", Severity: damage.SeveritySevere, Location: "front", EstimatedCost: 1200}},
		OverallCondition: damage.ConditionPoor,
	}
}

func dataURI(b []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(b)
}

func TestDecode(t *testing.T) {
	_, err := assess.Decode("", "x.jpg")
	assert.ErrorIs(t, err, assess.ErrNoImage)

	_, err = assess.Decode("!!!not-base64!!!", "x.jpg")
	assert.ErrorIs(t, err, assess.ErrBadImage)

	_, err = assess.Decode(base64.StdEncoding.EncodeToString([]byte("just some text")), "notes.txt")
	assert.ErrorIs(t, err, assess.ErrNotImage)

	up, err := assess.Decode(dataURI(pngBytes), "car.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", up.MIME)
	assert.Equal(t, pngBytes, up.Data)
	assert.Equal(t, "car.png", up.Name)
}

func TestService_Analyze(t *testing.T) {
	eng := &fakeEngine{res: sampleResult()}
	svc := assess.New(llm.NewEngines("deepseek", eng), assess.Options{})

	out, err := svc.Analyze(context.Background(), assess.Request{ImageBase64: dataURI(pngBytes), ImageName: "car.png"})
	require.NoError(t, err)
	assert.Equal(t, sampleResult(), out.Result)
	assert.Equal(t, "deepseek", out.Engine)
	assert.Equal(t, "DEEPSEEK-REASONER", out.Model)
	assert.Len(t, out.ImageHash, 64)
	assert.False(t, out.Cached)
	assert.Equal(t, "image/png", eng.last.MIME)
}

func TestService_NoImageMakesNoCall(t *testing.T) {
	eng := &fakeEngine{res: sampleResult()}
	svc := assess.New(llm.NewEngines("deepseek", eng), assess.Options{})

	_, err := svc.Analyze(context.Background(), assess.Request{ImageName: "car.png"})
	assert.ErrorIs(t, err, assess.ErrNoImage)
	assert.Zero(t, eng.calls)
}

func TestService_UnknownEngine(t *testing.T) {
	svc := assess.New(llm.NewEngines("deepseek", &fakeEngine{}), assess.Options{})
	_, err := svc.Analyze(context.Background(), assess.Request{ImageBase64: dataURI(pngBytes), Engine: "yandex"})
	assert.ErrorIs(t, err, llm.ErrUnknownEngine)
}

func TestService_UpstreamErrorPropagates(t *testing.T) {
	eng := &fakeEngine{err: fmt.Errorf("%w: deepseek 503: overloaded", llm.ErrUpstream)}
	svc := assess.New(llm.NewEngines("deepseek", eng), assess.Options{})

	_, err := svc.Analyze(context.Background(), assess.Request{ImageBase64: dataURI(pngBytes)})
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrUpstream)
	assert.Contains(t, err.Error(), "503")
}

func TestService_CacheHitSkipsEngine(t *testing.T) {
	eng := &fakeEngine{res: sampleResult()}
	c := &memCache{m: map[string]damage.AnalysisResult{}}
	svc := assess.New(llm.NewEngines("deepseek", eng), assess.Options{Cache: c})

	req := assess.Request{ImageBase64: dataURI(pngBytes), ImageName: "car.png"}
	_, err := svc.Analyze(context.Background(), req)
	require.NoError(t, err)
	out, err := svc.Analyze(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, out.Cached)
	assert.Equal(t, sampleResult(), out.Result)
	assert.Equal(t, 1, eng.calls)
}

func TestService_HistoryWriteAndReuse(t *testing.T) {
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer st.Close()

	eng := &fakeEngine{res: sampleResult()}
	svc := assess.New(llm.NewEngines("deepseek", eng), assess.Options{Store: st})

	req := assess.Request{ImageBase64: dataURI(pngBytes), ImageName: "car.png", SessionID: "s1"}
	first, err := svc.Analyze(context.Background(), req)
	require.NoError(t, err)
	svc.Wait()

	page, err := st.List(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "s1", page.Data[0].SessionID)
	assert.Equal(t, first.ImageHash, page.Data[0].ImageHash)

	second, err := svc.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, 1, eng.calls)
}

func TestService_DrivesOrchestrator(t *testing.T) {
	eng := &fakeEngine{res: sampleResult()}
	svc := assess.New(llm.NewEngines("deepseek", eng), assess.Options{})
	o := session.NewOrchestrator(svc, session.Options{})
	s := session.New("")

	o.Submit(context.Background(), s, session.Upload{Name: "a.png", Data: pngBytes})
	o.Submit(context.Background(), s, session.Upload{Name: "notes.txt", Data: []byte("plain text")})
	o.Wait()

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "deepseek", snap[0].Engine)
	assert.NotEmpty(t, snap[0].ImageHash)
	assert.Equal(t, session.FailedMessage, snap[1].Error)
	assert.Equal(t, 1200.0, s.Report().TotalCost)
}

func TestService_UnparsableReplyIsNotCached(t *testing.T) {
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer st.Close()

	eng := &fakeEngine{res: llm.Fallback()}
	c := &memCache{m: map[string]damage.AnalysisResult{}}
	svc := assess.New(llm.NewEngines("deepseek", eng), assess.Options{Cache: c, Store: st})

	req := assess.Request{ImageBase64: dataURI(pngBytes), ImageName: "car.png"}
	first, err := svc.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, llm.UnparsableMessage, first.Result.Message)
	svc.Wait()
	assert.Empty(t, c.m)

	page, err := st.List(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Empty(t, page.Data)

	// повтор с тем же снимком снова идёт в модель
	eng.res = sampleResult()
	second, err := svc.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, second.Cached)
	assert.Equal(t, sampleResult(), second.Result)
	assert.Equal(t, 2, eng.calls)
}
