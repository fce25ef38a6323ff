package main

import (
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pdfquiz"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	sessionName = "pdfquiz-session"
	ctrlKey     = "controller"
)

// Server serves one quiz workflow per browser session
type Server struct {
	store     *sessions.CookieStore
	sessions  *registry
	templates map[string]*template.Template
	maxUpload int64
	origins   []string
	log       *zap.SugaredLogger
	upgrader  websocket.Upgrader
}

type serverOptions struct {
	Generator    pdfquiz.Generator
	SessionKey   []byte
	SessionTTL   time.Duration
	MaxUpload    int64
	TimeLimit    int
	TickInterval time.Duration
	Origins      []string
	Logger       *zap.SugaredLogger
}

type pageData struct {
	View        pdfquiz.View
	Flash       string
	MaxUploadMB int64
}

func newServer(opts serverOptions) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = pdfquiz.Logger()
	}

	funcMap := template.FuncMap{
		"add": func(a, b int) int {
			return a + b
		},
		"letter": func(i int) string {
			return string(rune('A' + i))
		},
		"percent": func(f float64) int {
			return int(f * 100)
		},
		"isSelected": func(selected pdfquiz.Answer, i int) bool {
			return selected.Answered() && int(selected) == i
		},
		"answerText": func(q pdfquiz.Question, a pdfquiz.Answer) string {
			if !a.Answered() || int(a) >= len(q.Options) {
				return "Not answered"
			}
			return q.Options[a]
		},
	}

	templates := make(map[string]*template.Template)
	for _, phase := range []pdfquiz.Phase{pdfquiz.PhaseIntake, pdfquiz.PhaseTiming, pdfquiz.PhasePending, pdfquiz.PhaseAnswering, pdfquiz.PhaseScoring} {
		name := phase.String()
		tmpl, err := template.New(name).Funcs(funcMap).ParseFS(templateFS, "templates/base.html", "templates/"+name+".html")
		if err != nil {
			return nil, err
		}
		templates[name] = tmpl
	}

	store := sessions.NewCookieStore(opts.SessionKey)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(opts.SessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	factory := func() *pdfquiz.Controller {
		return pdfquiz.NewController(opts.Generator, pdfquiz.Options{
			TickInterval: opts.TickInterval,
			TimeLimit:    opts.TimeLimit,
			Logger:       opts.Logger,
		})
	}

	return &Server{
		store:     store,
		sessions:  newRegistry(opts.SessionTTL, factory, opts.Logger),
		templates: templates,
		maxUpload: opts.MaxUpload,
		origins:   opts.Origins,
		log:       opts.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}, nil
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log))
	if len(s.origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     s.origins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Content-Type", "Accept", "Origin", "X-Requested-With"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	app := r.Group("/", s.withController)
	{
		app.GET("/", s.handleIndex)
		app.GET("/api/view", s.handleView)
		app.GET("/ws", s.serveWS)

		app.POST("/upload", s.handleUpload)
		app.POST("/timer", s.handleTimer)
		app.POST("/answer", s.handleAnswer)
		app.POST("/action/:name", s.handleAction)
	}
	return r
}

// requestLogger logs one line per request at a level chosen by status
func requestLogger(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		fields := []interface{}{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		switch {
		case status >= 500:
			log.Errorw("HTTP request", fields...)
		case status >= 400:
			log.Warnw("HTTP request", fields...)
		default:
			log.Debugw("HTTP request", fields...)
		}
	}
}

// withController resolves the browser session to its controller, issuing a cookie on first visit.
func (s *Server) withController(c *gin.Context) {
	// a cookie signed with an old key yields a fresh session
	sess, _ := s.store.Get(c.Request, sessionName)
	id, _ := sess.Values["id"].(string)
	if id == "" {
		id = uuid.NewString()
		sess.Values["id"] = id
		if err := sess.Save(c.Request, c.Writer); err != nil {
			s.log.Errorw("failed to save session", "error", err)
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
	}
	c.Set(ctrlKey, s.sessions.get(id))
	c.Next()
}

func controllerFrom(c *gin.Context) *pdfquiz.Controller {
	return c.MustGet(ctrlKey).(*pdfquiz.Controller)
}

func (s *Server) handleIndex(c *gin.Context) {
	s.render(c, http.StatusOK, controllerFrom(c).View(), "")
}

func (s *Server) handleView(c *gin.Context) {
	c.JSON(http.StatusOK, controllerFrom(c).View())
}

func (s *Server) handleUpload(c *gin.Context) {
	ctrl := controllerFrom(c)

	// leave room for the multipart envelope
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload+1<<20)
	file, header, err := c.Request.FormFile("pdf")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respond(c, ctrl, pdfquiz.InvalidInput("the file is larger than %d MB", s.maxUpload>>20))
			return
		}
		s.respond(c, ctrl, pdfquiz.InvalidInput("please select a valid PDF file"))
		return
	}
	defer file.Close()

	doc, err := pdfquiz.LoadDocument(header.Filename, file, s.maxUpload)
	if err != nil {
		s.respond(c, ctrl, err)
		return
	}
	s.respond(c, ctrl, ctrl.SelectDocument(doc))
}

func (s *Server) handleTimer(c *gin.Context) {
	ctrl := controllerFrom(c)
	minutes, err := strconv.Atoi(strings.TrimSpace(c.PostForm("minutes")))
	if err != nil {
		s.respond(c, ctrl, pdfquiz.InvalidInput("please enter a valid time between %d and %d minutes", pdfquiz.MinTimeLimit, pdfquiz.MaxTimeLimit))
		return
	}
	s.respond(c, ctrl, ctrl.ConfirmTimeLimit(minutes))
}

func (s *Server) handleAnswer(c *gin.Context) {
	ctrl := controllerFrom(c)
	option, err := strconv.Atoi(c.PostForm("option"))
	if err != nil {
		s.respond(c, ctrl, pdfquiz.InvalidInput("please select one of the options"))
		return
	}
	s.respond(c, ctrl, ctrl.SelectOption(option))
}

func (s *Server) handleAction(c *gin.Context) {
	ctrl := controllerFrom(c)
	action, ok := actions[c.Param("name")]
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	s.respond(c, ctrl, action(ctrl))
}

// actions are the argument-free workflow events, shared by the form and websocket endpoints
var actions = map[string]func(*pdfquiz.Controller) error{
	"pause":        (*pdfquiz.Controller).PauseClock,
	"resume":       (*pdfquiz.Controller).ResumeClock,
	"restart":      (*pdfquiz.Controller).RestartClock,
	"cancel":       (*pdfquiz.Controller).Cancel,
	"next":         (*pdfquiz.Controller).Next,
	"previous":     (*pdfquiz.Controller).Previous,
	"skip":         (*pdfquiz.Controller).Skip,
	"finish":       (*pdfquiz.Controller).Finish,
	"new-set":      (*pdfquiz.Controller).NewQuestionSet,
	"new-document": (*pdfquiz.Controller).NewDocument,
	"dismiss": func(ctrl *pdfquiz.Controller) error {
		ctrl.ClearError()
		return nil
	},
}

// respond finishes a form or JSON request after an event was applied.
// Browsers are redirected back to the page for the current phase.
func (s *Server) respond(c *gin.Context, ctrl *pdfquiz.Controller, err error) {
	asJSON := c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON

	if err == nil {
		if asJSON {
			c.JSON(http.StatusOK, ctrl.View())
			return
		}
		c.Redirect(http.StatusSeeOther, "/")
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, pdfquiz.ErrInvalidTransition):
		status = http.StatusConflict
	case pdfquiz.KindOf(err) == pdfquiz.KindInvalidInput, pdfquiz.KindOf(err) == pdfquiz.KindReadFailed:
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.log.Errorw("request failed", "path", c.Request.URL.Path, "error", err)
	}

	if asJSON {
		c.JSON(status, gin.H{
			"error": pdfquiz.Message(err),
			"kind":  pdfquiz.KindOf(err),
			"view":  ctrl.View(),
		})
		return
	}
	// a stale form from another phase just shows the current page
	if status == http.StatusConflict {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	s.render(c, status, ctrl.View(), pdfquiz.Message(err))
}

func (s *Server) render(c *gin.Context, status int, v pdfquiz.View, flash string) {
	tmpl, ok := s.templates[v.Phase.String()]
	if !ok {
		c.String(http.StatusInternalServerError, "Template error")
		return
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(status)
	err := tmpl.ExecuteTemplate(c.Writer, "base.html", pageData{
		View:        v,
		Flash:       flash,
		MaxUploadMB: s.maxUpload >> 20,
	})
	if err != nil {
		s.log.Errorw("template error", "phase", v.Phase.String(), "error", err)
	}
}
