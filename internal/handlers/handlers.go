package handlers

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/glaucoscan/internal/auth"
	"github.com/example/glaucoscan/internal/classifier"
	"github.com/example/glaucoscan/internal/repository"
	"github.com/example/glaucoscan/internal/session"
	"github.com/example/glaucoscan/internal/usecase"
)

// MaxUploadSize is the default upper bound for an uploaded image in bytes.
const MaxUploadSize = 10 << 20

// multipartOverhead leaves room for boundaries and form fields around the file.
const multipartOverhead = 1 << 20

//go:embed templates/*.html
var templateFS embed.FS

// AccountService covers registration, login and user listings.
type AccountService interface {
	Register(ctx context.Context, reg usecase.Registration) (*repository.User, error)
	Authenticate(ctx context.Context, username, password string) (*repository.User, error)
	GetUser(ctx context.Context, id uint) (*repository.User, error)
	ListUsers(ctx context.Context) ([]repository.User, error)
}

// PredictionService covers the prediction workflow and result listings.
type PredictionService interface {
	Predict(ctx context.Context, patientID uint, upload usecase.Upload) (*repository.Result, error)
	ListResults(ctx context.Context) ([]repository.Result, error)
	ListPatientResults(ctx context.Context, patientID uint) ([]repository.Result, error)
	GetSummary(ctx context.Context) (*usecase.ResultSummary, error)
}

// SessionManager issues, resolves and revokes login sessions.
type SessionManager interface {
	auth.Resolver
	Issue(ctx context.Context, userID uint, role string) (string, *session.Session, error)
	Revoke(ctx context.Context, token string) error
	TTL() time.Duration
}

// Dependencies wires the HTTP layer to the use cases.
type Dependencies struct {
	Accounts    AccountService
	Predictions PredictionService
	Sessions    SessionManager
	Logger      *zap.Logger

	// StaticDir is served under /static; uploads live in its uploads/ directory.
	StaticDir string
	// MaxUploadBytes bounds the uploaded file; zero means MaxUploadSize.
	MaxUploadBytes int64
	SecureCookie   bool
	// Metrics, when set, is served on /metrics.
	Metrics http.Handler
}

type handler struct {
	deps      Dependencies
	maxUpload int64
	logger    *zap.Logger
}

// Templates parses the embedded page templates.
func Templates() (*template.Template, error) {
	return template.New("").Funcs(template.FuncMap{
		"date": func(t time.Time) string { return t.Format(usecase.DateLayout) },
		"datetime": func(t time.Time) string {
			return t.UTC().Format("2006-01-02 15:04 MST")
		},
		"percent": func(f float64) string { return fmt.Sprintf("%.1f%%", f*100) },
	}).ParseFS(templateFS, "templates/*.html")
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, deps Dependencies) error {
	tmpl, err := Templates()
	if err != nil {
		return fmt.Errorf("parse templates: %w", err)
	}
	router.SetHTMLTemplate(tmpl)

	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	h := &handler{deps: deps, maxUpload: deps.MaxUploadBytes, logger: deps.Logger.Named("http")}
	if h.maxUpload <= 0 {
		h.maxUpload = MaxUploadSize
	}
	router.MaxMultipartMemory = h.maxUpload

	router.Use(RequestLogger(h.logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}
	if deps.StaticDir != "" {
		router.Static("/static", deps.StaticDir)
	}

	router.GET("/", h.index)
	router.GET("/register", h.registerForm)
	router.POST("/register", h.register)
	router.POST("/login", h.login)
	router.POST("/logout", h.logout)

	patient := auth.RequireRole(deps.Sessions, repository.RolePatient)
	admin := auth.RequireRole(deps.Sessions, repository.RoleAdmin)

	router.GET("/patient_dashboard", patient, h.patientDashboard)
	router.POST("/predict", patient, h.predict)
	router.GET("/admin_dashboard", admin, h.adminDashboard)
	router.GET("/view_users", admin, h.viewUsers)
	return nil
}

func (h *handler) index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{})
}

func (h *handler) registerForm(c *gin.Context) {
	c.HTML(http.StatusOK, "register.html", gin.H{})
}

type registerRequest struct {
	Username string `form:"username" binding:"required,max=20"`
	Password string `form:"password" binding:"required"`
	Name     string `form:"name" binding:"required,max=100"`
	Email    string `form:"email" binding:"required,email,max=120"`
	DOB      string `form:"dob" binding:"required"`
}

func (h *handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBind(&req); err != nil {
		c.HTML(http.StatusBadRequest, "register.html", gin.H{
			"error": "Please fill in every field with a valid value.",
			"form":  req,
		})
		return
	}

	_, err := h.deps.Accounts.Register(c.Request.Context(), usecase.Registration{
		Username:    req.Username,
		Password:    req.Password,
		Name:        req.Name,
		Email:       req.Email,
		DateOfBirth: req.DOB,
	})
	switch {
	case err == nil:
		c.Redirect(http.StatusSeeOther, "/")
	case errors.Is(err, repository.ErrDuplicateEmail):
		c.HTML(http.StatusConflict, "register.html", gin.H{"error": "Email address is already registered.", "form": req})
	case errors.Is(err, repository.ErrDuplicateUsername):
		c.HTML(http.StatusConflict, "register.html", gin.H{"error": "Username is already taken.", "form": req})
	case errors.Is(err, usecase.ErrInvalidInput):
		c.HTML(http.StatusBadRequest, "register.html", gin.H{"error": err.Error(), "form": req})
	default:
		h.logger.Error("registration failed", zap.Error(err), zap.String("username", req.Username))
		c.HTML(http.StatusInternalServerError, "register.html", gin.H{"error": "An error occurred during registration.", "form": req})
	}
}

func (h *handler) login(c *gin.Context) {
	username := c.PostForm("username")
	user, err := h.deps.Accounts.Authenticate(c.Request.Context(), username, c.PostForm("password"))
	if err != nil {
		if !errors.Is(err, usecase.ErrInvalidCredentials) {
			h.logger.Error("authentication failed", zap.Error(err))
		}
		c.HTML(http.StatusUnauthorized, "index.html", gin.H{"error": "Invalid credentials"})
		return
	}
	if requested := c.PostForm("role"); requested != "" && requested != user.Role {
		h.logger.Info("ignoring requested role", zap.Uint("user_id", user.ID), zap.String("requested", requested))
	}

	token, _, err := h.deps.Sessions.Issue(c.Request.Context(), user.ID, user.Role)
	if err != nil {
		h.logger.Error("failed to start session", zap.Error(err), zap.Uint("user_id", user.ID))
		c.HTML(http.StatusInternalServerError, "index.html", gin.H{"error": "Unable to sign in right now. Please try again."})
		return
	}
	auth.SetCookie(c, token, int(h.deps.Sessions.TTL().Seconds()), h.deps.SecureCookie)
	c.Redirect(http.StatusSeeOther, dashboardFor(user.Role))
}

func (h *handler) logout(c *gin.Context) {
	if token := auth.Token(c.Request); token != "" {
		if err := h.deps.Sessions.Revoke(c.Request.Context(), token); err != nil {
			h.logger.Warn("failed to revoke session", zap.Error(err))
		}
	}
	auth.ClearCookie(c, h.deps.SecureCookie)
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *handler) patientDashboard(c *gin.Context) {
	s, _ := auth.CurrentSession(c)
	ctx := c.Request.Context()

	user, err := h.deps.Accounts.GetUser(ctx, s.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	if err != nil {
		h.serverError(c, "failed to load patient", err)
		return
	}
	results, err := h.deps.Predictions.ListPatientResults(ctx, s.UserID)
	if err != nil {
		h.serverError(c, "failed to load patient results", err)
		return
	}
	c.HTML(http.StatusOK, "patient_page.html", gin.H{"patient": user, "results": results})
}

func (h *handler) predict(c *gin.Context) {
	s, _ := auth.CurrentSession(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+multipartOverhead)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.uploadTooLarge(c)
			return
		}
		c.HTML(http.StatusBadRequest, "index.html", gin.H{"error": "Please choose an image to upload."})
		return
	}
	defer file.Close()

	if header.Size > h.maxUpload {
		h.uploadTooLarge(c)
		return
	}
	contentType, err := sniffImage(file)
	if err != nil {
		c.HTML(http.StatusUnsupportedMediaType, "index.html", gin.H{"error": "Only PNG and JPEG images are supported."})
		return
	}

	result, err := h.deps.Predictions.Predict(c.Request.Context(), s.UserID, usecase.Upload{
		Body:        file,
		Filename:    header.Filename,
		ContentType: contentType,
	})
	if err != nil {
		if errors.Is(err, classifier.ErrInference) {
			c.HTML(http.StatusUnprocessableEntity, "index.html", gin.H{
				"error": "The image could not be analysed. Please upload a clear retinal photograph.",
			})
			return
		}
		h.serverError(c, "prediction failed", err)
		return
	}

	c.HTML(http.StatusOK, "index.html", gin.H{
		"result":         result.Label,
		"uploaded_image": "/static/" + result.ImagePath,
		"loggedIn":       true,
	})
}

func (h *handler) adminDashboard(c *gin.Context) {
	ctx := c.Request.Context()
	results, err := h.deps.Predictions.ListResults(ctx)
	if err != nil {
		h.serverError(c, "failed to list results", err)
		return
	}
	summary, err := h.deps.Predictions.GetSummary(ctx)
	if err != nil {
		h.serverError(c, "failed to summarise results", err)
		return
	}
	c.HTML(http.StatusOK, "admin_page.html", gin.H{"results": results, "summary": summary})
}

func (h *handler) viewUsers(c *gin.Context) {
	users, err := h.deps.Accounts.ListUsers(c.Request.Context())
	if err != nil {
		h.serverError(c, "failed to list users", err)
		return
	}
	c.HTML(http.StatusOK, "view_users.html", gin.H{"users": users})
}

func (h *handler) uploadTooLarge(c *gin.Context) {
	c.HTML(http.StatusRequestEntityTooLarge, "index.html", gin.H{
		"error": fmt.Sprintf("The image is larger than %d MB.", h.maxUpload>>20),
	})
}

func (h *handler) serverError(c *gin.Context, msg string, err error) {
	h.logger.Error(msg, zap.Error(err), zap.String("path", c.Request.URL.Path))
	c.HTML(http.StatusInternalServerError, "index.html", gin.H{"error": "Something went wrong. Please try again."})
}

func dashboardFor(role string) string {
	if role == repository.RoleAdmin {
		return "/admin_dashboard"
	}
	return "/patient_dashboard"
}

// sniffImage detects the content type from the leading bytes and rewinds the file.
func sniffImage(file io.ReadSeeker) (string, error) {
	buf := make([]byte, 512)
	n, err := io.ReadFull(file, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	switch contentType := http.DetectContentType(buf[:n]); contentType {
	case "image/png", "image/jpeg":
		return contentType, nil
	default:
		return "", fmt.Errorf("unsupported content type %s", contentType)
	}
}
