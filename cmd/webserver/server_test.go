package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"pdfquiz"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const fakePDF = "%PDF-1.4\n1 0 obj\n<<>>\nendobj\n%%EOF\n"

type instantGenerator struct {
	questions []pdfquiz.Question
}

func (g instantGenerator) Generate(ctx context.Context, doc pdfquiz.Document) ([]pdfquiz.Question, error) {
	return g.questions, nil
}

func testQuestions(n int) []pdfquiz.Question {
	questions := make([]pdfquiz.Question, n)
	for i := range questions {
		questions[i] = pdfquiz.Question{
			ID:            i + 1,
			Text:          "Which organelle makes ATP?",
			Options:       []string{"Nucleus", "Mitochondria", "Ribosome", "Golgi"},
			CorrectAnswer: 1,
		}
	}
	return questions
}

type testClient struct {
	t      *testing.T
	srv    *httptest.Server
	server *Server
	http   *http.Client
}

func newTestClient(t *testing.T, maxUpload int64) *testClient {
	t.Helper()
	server, err := newServer(serverOptions{
		Generator:    instantGenerator{questions: testQuestions(3)},
		SessionKey:   []byte("0123456789abcdef0123456789abcdef"),
		SessionTTL:   time.Hour,
		MaxUpload:    maxUpload,
		TimeLimit:    5,
		TickInterval: time.Millisecond,
		Logger:       zap.NewNop().Sugar(),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(server.routes())
	t.Cleanup(func() {
		srv.Close()
		server.sessions.closeAll()
	})

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &testClient{
		t:      t,
		srv:    srv,
		server: server,
		http: &http.Client{
			Jar: jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (c *testClient) do(req *http.Request) (*http.Response, string) {
	c.t.Helper()
	resp, err := c.http.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func (c *testClient) get(path string) (*http.Response, string) {
	c.t.Helper()
	req, _ := http.NewRequest(http.MethodGet, c.srv.URL+path, nil)
	return c.do(req)
}

func (c *testClient) post(path string, form url.Values, asJSON bool) (*http.Response, string) {
	c.t.Helper()
	req, _ := http.NewRequest(http.MethodPost, c.srv.URL+path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if asJSON {
		req.Header.Set("Accept", "application/json")
	}
	return c.do(req)
}

func (c *testClient) upload(name string, data []byte, asJSON bool) (*http.Response, string) {
	c.t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("pdf", name)
	if err != nil {
		c.t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write(data)
	_ = w.Close()

	req, _ := http.NewRequest(http.MethodPost, c.srv.URL+"/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if asJSON {
		req.Header.Set("Accept", "application/json")
	}
	return c.do(req)
}

func (c *testClient) view() pdfquiz.View {
	c.t.Helper()
	resp, body := c.get("/api/view")
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("view: status %d", resp.StatusCode)
	}
	var v pdfquiz.View
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		c.t.Fatalf("decode view: %v (%s)", err, body)
	}
	return v
}

func (c *testClient) waitForPhase(p pdfquiz.Phase) pdfquiz.View {
	c.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if v := c.view(); v.Phase == p {
			return v
		}
		time.Sleep(10 * time.Millisecond)
	}
	c.t.Fatalf("timed out waiting for %s", p)
	return pdfquiz.View{}
}

func TestIndexStartsAtIntake(t *testing.T) {
	c := newTestClient(t, 1<<20)

	resp, body := c.get("/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "Upload a PDF") {
		t.Fatalf("expected the upload page, got %s", body)
	}
	if len(resp.Cookies()) == 0 {
		t.Fatalf("expected a session cookie")
	}
	if c.server.sessions.len() != 1 {
		t.Fatalf("expected one session, got %d", c.server.sessions.len())
	}

	c.get("/")
	if c.server.sessions.len() != 1 {
		t.Fatalf("the cookie did not map back to the same session")
	}
}

func TestUploadRejectsNonPDF(t *testing.T) {
	c := newTestClient(t, 1<<20)

	resp, body := c.upload("notes.pdf", []byte("this is plain text"), false)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "please select a valid PDF file") {
		t.Fatalf("expected an error message, got %s", body)
	}
	if c.view().Phase != pdfquiz.PhaseIntake {
		t.Fatalf("expected to stay in intake")
	}
}

func TestUploadRejectsLargeFile(t *testing.T) {
	c := newTestClient(t, 64)

	data := []byte(fakePDF + strings.Repeat(" ", 128))
	resp, body := c.upload("big.pdf", data, true)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "larger than") {
		t.Fatalf("expected a size error, got %s", body)
	}
}

func TestQuizFlow(t *testing.T) {
	c := newTestClient(t, 1<<20)

	resp, body := c.upload("bio.pdf", []byte(fakePDF), false)
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/" {
		t.Fatalf("expected a redirect after upload, got %d %s", resp.StatusCode, body)
	}
	_, body = c.get("/")
	if !strings.Contains(body, "bio.pdf") || !strings.Contains(body, `value="5"`) {
		t.Fatalf("expected the timer page with the default minutes, got %s", body)
	}

	resp, body = c.post("/timer", url.Values{"minutes": {"0"}}, true)
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(body, "invalid_input") {
		t.Fatalf("expected invalid input, got %d %s", resp.StatusCode, body)
	}
	resp, body = c.post("/timer", url.Values{"minutes": {"abc"}}, false)
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(body, "between 1 and 120 minutes") {
		t.Fatalf("expected the timer page with an error, got %d %s", resp.StatusCode, body)
	}

	resp, _ = c.post("/timer", url.Values{"minutes": {"1"}}, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	v := c.waitForPhase(pdfquiz.PhaseAnswering)
	if v.Total != 3 || v.Question == nil {
		t.Fatalf("unexpected answering view: %+v", v)
	}
	_, body = c.get("/")
	if !strings.Contains(body, "Question 1 of 3") {
		t.Fatalf("expected the question page, got %s", body)
	}

	c.post("/answer", url.Values{"option": {"1"}}, false)
	c.post("/action/next", nil, false)
	c.post("/answer", url.Values{"option": {"0"}}, false)
	c.post("/action/skip", nil, false)

	resp, body = c.post("/action/finish", nil, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("finish: %d %s", resp.StatusCode, body)
	}
	v = c.view()
	if v.Phase != pdfquiz.PhaseScoring || v.Score == nil {
		t.Fatalf("expected scoring, got %+v", v)
	}
	if v.Score.Correct != 1 || v.Score.Attempted != 2 || v.Score.Total != 3 || v.Score.Percentage != 33 {
		t.Fatalf("unexpected score %+v", v.Score)
	}
	_, body = c.get("/")
	if !strings.Contains(body, "33%") || !strings.Contains(body, "Not answered") {
		t.Fatalf("expected the results page, got %s", body)
	}

	c.post("/action/new-set", nil, false)
	if v := c.view(); v.Phase != pdfquiz.PhaseTiming || v.DocumentName != "bio.pdf" || v.TimeLimit != 1 {
		t.Fatalf("expected timing with the same document, got %+v", v)
	}
}

func TestStaleFormRedirects(t *testing.T) {
	c := newTestClient(t, 1<<20)

	resp, _ := c.post("/action/next", nil, false)
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected a redirect for an out-of-phase form, got %d", resp.StatusCode)
	}
	resp, _ = c.post("/action/next", nil, true)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for an out-of-phase JSON request, got %d", resp.StatusCode)
	}
	resp, _ = c.post("/action/teleport", nil, true)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown action, got %d", resp.StatusCode)
	}
}

func TestWebSocketStreamsViews(t *testing.T) {
	c := newTestClient(t, 1<<20)
	c.upload("bio.pdf", []byte(fakePDF), false)

	u, _ := url.Parse(c.srv.URL)
	header := http.Header{}
	for _, cookie := range c.http.Jar.Cookies(u) {
		header.Add("Cookie", cookie.String())
	}
	wsURL := "ws" + strings.TrimPrefix(c.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	first := readMessage(t, conn)
	if first.Type != "view" || first.Payload.Phase != pdfquiz.PhaseTiming {
		t.Fatalf("expected the current timing view first, got %+v", first)
	}

	one := 1
	if err := conn.WriteJSON(inboundMessage{Action: "timer", Option: &one}); err != nil {
		t.Fatalf("write: %v", err)
	}
	for {
		msg := readMessage(t, conn)
		if msg.Type == "view" && msg.Payload.Phase == pdfquiz.PhaseAnswering {
			break
		}
	}

	bad := 9
	if err := conn.WriteJSON(inboundMessage{Action: "select", Option: &bad}); err != nil {
		t.Fatalf("write: %v", err)
	}
	for {
		msg := readMessage(t, conn)
		if msg.Type == "error" {
			if msg.Error.Kind != pdfquiz.KindInvalidInput {
				t.Fatalf("expected invalid input, got %+v", msg.Error)
			}
			break
		}
	}
}

type wsMessage struct {
	Type    string
	Payload pdfquiz.View
	Error   errorPayload
}

func readMessage(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	var raw struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&raw); err != nil {
		t.Fatalf("read: %v", err)
	}
	msg := wsMessage{Type: raw.Type}
	var err error
	switch raw.Type {
	case "view":
		err = json.Unmarshal(raw.Payload, &msg.Payload)
	case "error":
		err = json.Unmarshal(raw.Payload, &msg.Error)
	}
	if err != nil {
		t.Fatalf("decode %s: %v", raw.Type, err)
	}
	return msg
}

func TestRegistryEvictsIdleSessions(t *testing.T) {
	now := time.Now()
	r := newRegistry(time.Hour, func() *pdfquiz.Controller {
		return pdfquiz.NewController(instantGenerator{}, pdfquiz.Options{})
	}, zap.NewNop().Sugar())
	r.now = func() time.Time { return now }

	idle := r.get("idle")
	views, cancel := idle.Subscribe()
	defer cancel()
	<-views

	now = now.Add(45 * time.Minute)
	r.get("active")
	now = now.Add(30 * time.Minute)

	if n := r.sweep(); n != 1 {
		t.Fatalf("expected one eviction, got %d", n)
	}
	if r.len() != 1 {
		t.Fatalf("expected the active session to remain, got %d", r.len())
	}
	if _, ok := <-views; ok {
		t.Fatalf("expected the evicted controller to be closed")
	}
}

func TestCORSAllowsConfiguredOrigins(t *testing.T) {
	server, err := newServer(serverOptions{
		Generator:  instantGenerator{questions: testQuestions(1)},
		SessionKey: []byte("0123456789abcdef0123456789abcdef"),
		SessionTTL: time.Hour,
		MaxUpload:  1 << 20,
		Origins:    []string{"http://localhost:3000"},
		Logger:     zap.NewNop().Sugar(),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer server.sessions.closeAll()
	router := server.routes()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("expected the origin to be allowed, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected an unknown origin to be refused, got %d", rec.Code)
	}
}
