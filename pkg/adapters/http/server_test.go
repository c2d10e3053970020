package http_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/preceptor/internal/runtime"
	"github.com/aretw0/preceptor/pkg/adapters/memory"
	preceptorhttp "github.com/aretw0/preceptor/pkg/adapters/http"
	"github.com/aretw0/preceptor/pkg/domain"
	"github.com/aretw0/preceptor/pkg/session"
)

type stubGenerator struct{}

func (stubGenerator) Generate(_ context.Context, s *domain.State) (domain.Artifacts, error) {
	return domain.Artifacts{Report: "report " + s.SessionID, VirtualPatient: "persona"}, nil
}

func newHandler(t *testing.T, opts ...preceptorhttp.Option) http.Handler {
	t.Helper()
	h, err := preceptorhttp.NewHandler(runtime.NewEngine(memory.NewEchoGateway()), opts...)
	require.NoError(t, err)
	return h
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

type chatResponse struct {
	AIMessage string       `json:"ai_message"`
	State     domain.State `json:"state"`
}

func decodeChat(t *testing.T, w *httptest.ResponseRecorder) chatResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp chatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestChat_FirstTurnStartsSession(t *testing.T) {
	h := newHandler(t)

	resp := decodeChat(t, do(t, h, http.MethodPost, "/chat", map[string]any{
		"message": "",
		"state": map[string]any{
			"checklist": map[string]any{"symptoms": []string{"fever", "cough"}, "vitals": map[string]any{"temp": 38.5}},
		},
	}))

	assert.NotEmpty(t, resp.AIMessage)
	assert.NotEmpty(t, resp.State.SessionID)
	assert.Equal(t, domain.PhaseDifferential, resp.State.Phase)
	assert.Len(t, resp.State.History, 2)
	assert.Contains(t, resp.State.History[0].Content, "38.5")
}

func TestChat_FullRunFinalizesOnce(t *testing.T) {
	finalizer := session.NewFinalizer(stubGenerator{}, memory.NewArtifactStore(), memory.NewClaimer())
	h := newHandler(t, preceptorhttp.WithFinalizer(finalizer))

	var state any = map[string]any{"session_id": "run-1", "phase": "summary", "checklist": map[string]any{}}
	var last chatResponse
	for i := 0; i < len(domain.Sequence())-1; i++ {
		last = decodeChat(t, do(t, h, http.MethodPost, "/chat", map[string]any{"message": "answer", "state": state}))
		state = last.State
	}
	assert.Equal(t, domain.PhaseOutputs, last.State.Phase)
	assert.Len(t, last.State.History, 20)

	w := do(t, h, http.MethodPost, "/chat", map[string]any{"message": "more", "state": state})
	assert.Equal(t, http.StatusConflict, w.Code)

	finalizer.Wait()
	w = do(t, h, http.MethodGet, "/artifacts/run-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var arts domain.Artifacts
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &arts))
	assert.Equal(t, "report run-1", arts.Report)
}

func TestChat_RetryWithoutSessionID(t *testing.T) {
	gen := &countingGenerator{}
	finalizer := session.NewFinalizer(gen, memory.NewArtifactStore(), memory.NewClaimer())
	h := newHandler(t, preceptorhttp.WithFinalizer(finalizer))

	state := map[string]any{
		"phase":     "final_feedback",
		"checklist": map[string]any{"a": 1},
		"history":   []map[string]any{{"role": "human", "content": "prompt"}},
	}
	first := decodeChat(t, do(t, h, http.MethodPost, "/chat", map[string]any{"message": "", "state": state}))
	finalizer.Wait()
	second := decodeChat(t, do(t, h, http.MethodPost, "/chat", map[string]any{"message": "", "state": state}))
	finalizer.Wait()

	assert.Equal(t, first.State.SessionID, second.State.SessionID)
	assert.Equal(t, int32(1), gen.calls.Load())

	w := do(t, h, http.MethodGet, "/artifacts/"+first.State.SessionID, nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

type countingGenerator struct{ calls atomic.Int32 }

func (g *countingGenerator) Generate(ctx context.Context, s *domain.State) (domain.Artifacts, error) {
	g.calls.Add(1)
	return stubGenerator{}.Generate(ctx, s)
}

func TestChat_Errors(t *testing.T) {
	t.Run("gateway failure", func(t *testing.T) {
		gw := memory.NewScriptedGateway()
		h, err := preceptorhttp.NewHandler(runtime.NewEngine(gw))
		require.NoError(t, err)

		w := do(t, h, http.MethodPost, "/chat", map[string]any{"message": "", "state": map[string]any{"phase": "diff"}})
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})

	t.Run("unknown phase", func(t *testing.T) {
		w := do(t, newHandler(t), http.MethodPost, "/chat", map[string]any{"message": "", "state": map[string]any{"phase": "triage"}})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Contains(t, w.Body.String(), "triage")
	})

	t.Run("schema violation", func(t *testing.T) {
		w := do(t, newHandler(t), http.MethodPost, "/chat", map[string]any{"state": map[string]any{}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("control characters stripped", func(t *testing.T) {
		resp := decodeChat(t, do(t, newHandler(t), http.MethodPost, "/chat", map[string]any{
			"message": "fever\x1b[0m",
			"state":   map[string]any{"phase": "summary"},
		}))
		assert.Equal(t, "fever[0m", resp.State.History[2].Content)
	})
}

func TestSimpleChat(t *testing.T) {
	gw := memory.NewScriptedGateway("I have had this cough for a week, doctor.")
	h := newHandler(t, preceptorhttp.WithGateway(gw))

	w := do(t, h, http.MethodPost, "/chat/simple", map[string]any{
		"message":       "How long have you been coughing?",
		"system_prompt": "You are Maria, a 67 year old patient.",
		"history": []map[string]string{
			{"role": "user", "content": "Hello"},
			{"role": "assistant", "content": "Hi doctor"},
		},
	})
	resp := decodeChat(t, w)
	assert.Equal(t, "I have had this cough for a week, doctor.", resp.AIMessage)

	calls := gw.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "You are Maria, a 67 year old patient.", calls[0].SystemPrompt)
	require.Len(t, calls[0].History, 2)
	assert.Equal(t, domain.RoleHuman, calls[0].History[0].Role)
	assert.Equal(t, domain.RoleAI, calls[0].History[1].Role)

	w = do(t, newHandler(t), http.MethodPost, "/chat/simple", map[string]any{"message": "x"})
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestSessions(t *testing.T) {
	finalizer := session.NewFinalizer(stubGenerator{}, memory.NewArtifactStore(), memory.NewClaimer())
	svc := session.NewService(
		runtime.NewEngine(memory.NewEchoGateway()),
		session.NewManager(memory.NewStore()),
		finalizer,
		session.WithIDGenerator(func() string { return "sess-1" }),
	)
	h := newHandler(t, preceptorhttp.WithSessions(svc))

	w := do(t, h, http.MethodPost, "/sessions", map[string]any{"checklist": map[string]any{"age": 54}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	for i := 0; i < len(domain.Sequence())-1; i++ {
		w = do(t, h, http.MethodPost, "/sessions/sess-1/turns", map[string]any{"message": "answer"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w = do(t, h, http.MethodPost, "/sessions/sess-1/turns", map[string]any{"message": "again"})
	assert.Equal(t, http.StatusConflict, w.Code)

	svc.Wait()
	w = do(t, h, http.MethodGet, "/sessions/sess-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var state domain.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, domain.PhaseOutputs, state.Phase)
	assert.Equal(t, "report sess-1", state.Report)

	w = do(t, h, http.MethodGet, "/sessions", nil)
	assert.JSONEq(t, `["sess-1"]`, w.Body.String())

	w = do(t, h, http.MethodGet, "/sessions/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodDelete, "/sessions/sess-1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, newHandler(t), http.MethodPost, "/sessions", map[string]any{})
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestArtifacts_NotFound(t *testing.T) {
	w := do(t, newHandler(t), http.MethodGet, "/artifacts/none", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandouts(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dyspnea.pdf"), []byte("%PDF-1.4"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".secret"), []byte("x"), 0o644))
	h := newHandler(t, preceptorhttp.WithHandoutsDir(dir))

	w := do(t, h, http.MethodGet, "/handouts/dyspnea.pdf", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF-1.4", w.Body.String())

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/handouts/missing.pdf", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/handouts/.secret", nil).Code)
}

func TestMeta(t *testing.T) {
	h := newHandler(t, preceptorhttp.WithVersion("1.2.3"))

	w := do(t, h, http.MethodGet, "/health", nil)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = do(t, h, http.MethodGet, "/phases", nil)
	assert.JSONEq(t, `["summary","diff","lead","alts","errors","plan","final_feedback","outputs"]`, w.Body.String())

	w = do(t, h, http.MethodGet, "/info", nil)
	assert.Contains(t, w.Body.String(), `"version":"1.2.3"`)

	w = do(t, h, http.MethodGet, "/openapi.yaml", nil)
	assert.Contains(t, w.Body.String(), "openapi: 3.0.3")

	w = do(t, h, http.MethodOptions, "/chat", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSubscribeEvents_Session(t *testing.T) {
	srv := httptest.NewServer(newHandler(t))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events?session_id=s1&watch=phase", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	waitFor := func(prefix string) string {
		for lines.Scan() {
			if strings.HasPrefix(lines.Text(), prefix) {
				return lines.Text()
			}
		}
		t.Fatalf("stream ended before %q", prefix)
		return ""
	}
	waitFor("data: connected")

	body, _ := json.Marshal(map[string]any{"message": "", "state": map[string]any{"session_id": "s1", "phase": "summary"}})
	post, err := http.Post(srv.URL+"/chat", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	_ = post.Body.Close()
	require.Equal(t, http.StatusOK, post.StatusCode)

	line := waitFor("data: {")
	var diff domain.StateDiff
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &diff))
	require.NotNil(t, diff.Phase)
	assert.Equal(t, domain.PhaseDifferential, *diff.Phase)
	assert.Len(t, diff.Appended, 2)
}

func TestSubscribeEvents_RequiresSession(t *testing.T) {
	w := do(t, newHandler(t), http.MethodGet, "/events", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStreamManager(t *testing.T) {
	sm := preceptorhttp.NewStreamManager(nil)
	ch, leave := sm.Subscribe("s")
	assert.Equal(t, 1, sm.Subscribers("s"))

	sm.Broadcast("s", "hello")
	assert.Equal(t, "hello", <-ch)

	leave()
	leave()
	assert.Zero(t, sm.Subscribers("s"))
	_, open := <-ch
	assert.False(t, open)
}
