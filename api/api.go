package api

import (
	"errors"
	"fmt"
	"net/http"

	"parley/backend"
	"parley/chat"
	"parley/common"
	"parley/config"
	"parley/domain"
	"parley/reference"
	"parley/update"
	"parley/workspace"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Controller wires the HTTP surface to the application managers.
type Controller struct {
	config     *config.Manager
	workspaces *workspace.Manager
	registry   *backend.Registry
	orch       *chat.AskOrchestrator
	checker    *update.Checker
}

func NewController(configManager *config.Manager, workspaces *workspace.Manager, registry *backend.Registry, orch *chat.AskOrchestrator) *Controller {
	return &Controller{
		config:     configManager,
		workspaces: workspaces,
		registry:   registry,
		orch:       orch,
		checker:    update.NewChecker(),
	}
}

func RunServer(ctrl *Controller) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := DefineRoutes(ctrl)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", common.GetServerPort()),
		Handler: router.Handler(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start API server")
		}
	}()

	return srv
}

func DefineRoutes(ctrl *Controller) *gin.Engine {
	r := gin.Default()
	r.ForwardedByClientIP = true
	r.SetTrustedProxies(nil)

	v1 := r.Group("/api/v1")

	workspaceRoutes := v1.Group("/workspaces")
	workspaceRoutes.GET("/", ctrl.ListWorkspacesHandler)
	workspaceRoutes.POST("/", ctrl.CreateWorkspaceHandler)
	workspaceRoutes.GET("/current", ctrl.CurrentWorkspaceHandler)
	workspaceRoutes.GET("/:id", ctrl.GetWorkspaceHandler)
	workspaceRoutes.PUT("/:id", ctrl.UpdateWorkspaceHandler)
	workspaceRoutes.DELETE("/:id", ctrl.DeleteWorkspaceHandler)
	workspaceRoutes.POST("/:id/switch", ctrl.SwitchWorkspaceHandler)
	workspaceRoutes.GET("/:id/export", ctrl.ExportWorkspaceHandler)
	workspaceRoutes.GET("/:id/status", ctrl.WorkspaceStatusHandler)
	workspaceRoutes.POST("/:id/ask", ctrl.AskHandler)

	workspaceRoutes.POST("/:id/references/document", ctrl.AttachDocumentHandler)
	workspaceRoutes.POST("/:id/references/image", ctrl.AttachImageHandler)
	workspaceRoutes.POST("/:id/references/webpage", ctrl.AttachWebpageHandler)
	workspaceRoutes.POST("/:id/references/youtube", ctrl.AttachYoutubeTranscriptHandler)
	workspaceRoutes.DELETE("/:id/references/:uuid", ctrl.DetachReferenceHandler)

	v1.GET("/backends", ctrl.ListBackendsHandler)
	v1.GET("/youtube", ctrl.YoutubeVideoHandler)
	v1.POST("/token_count", ctrl.TokenCountHandler)
	v1.GET("/update", ctrl.CheckUpdateHandler)
	v1.POST("/media/image", ctrl.GenerateImageHandler)
	v1.POST("/media/music", ctrl.GenerateMusicHandler)

	return r
}

func (ctrl *Controller) ErrorHandler(c *gin.Context, status int, err error) {
	log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	c.JSON(status, gin.H{"error": err.Error()})
}

func (ctrl *Controller) statusForError(err error) int {
	switch {
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, workspace.ErrAskInFlight):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (ctrl *Controller) ListWorkspacesHandler(c *gin.Context) {
	cfg := ctrl.config.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"workspaces":           cfg.Workspaces,
		"current_workspace_id": cfg.CurrentWorkspaceId,
	})
}

type createWorkspaceRequest struct {
	Title string `json:"title"`
}

func (ctrl *Controller) CreateWorkspaceHandler(c *gin.Context) {
	var req createWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ctrl.ErrorHandler(c, http.StatusBadRequest, err)
		return
	}
	ws, err := ctrl.workspaces.Create(c.Request.Context(), req.Title)
	if err != nil {
		ctrl.ErrorHandler(c, ctrl.statusForError(err), err)
		return
	}
	c.JSON(http.StatusCreated, ws)
}

func (ctrl *Controller) CurrentWorkspaceHandler(c *gin.Context) {
	ws, ok := ctrl.workspaces.Current()
	if !ok {
		ctrl.ErrorHandler(c, http.StatusNotFound, errors.New("no current workspace"))
		return
	}
	c.JSON(http.StatusOK, ws)
}

func (ctrl *Controller) GetWorkspaceHandler(c *gin.Context) {
	ws, err := ctrl.workspaces.Get(c.Param("id"))
	if err != nil {
		ctrl.ErrorHandler(c, ctrl.statusForError(err), err)
		return
	}
	c.JSON(http.StatusOK, ws)
}

type updateWorkspaceRequest struct {
	Title             *string `json:"title"`
	Context           *string `json:"context"`
	Input             *string `json:"input"`
	Backend           *string `json:"backend"`
	Locale            *string `json:"locale"`
	Preset            *string `json:"preset"`
	ConversationStyle *string `json:"conversation_style"`
	NoSearch          *bool   `json:"no_search"`
	GPT4Turbo         *bool   `json:"gpt_4_turbo"`
	PersistentInput   *bool   `json:"persistent_input"`
	Model             *string `json:"model"`
}

func (ctrl *Controller) UpdateWorkspaceHandler(c *gin.Context) {
	var req updateWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ctrl.ErrorHandler(c, http.StatusBadRequest, err)
		return
	}

	err := ctrl.workspaces.Update(c.Request.Context(), c.Param("id"), func(ws *domain.Workspace) error {
		setIfPresent(&ws.Title, req.Title)
		setIfPresent(&ws.Context, req.Context)
		setIfPresent(&ws.Input, req.Input)
		setIfPresent(&ws.Backend, req.Backend)
		setIfPresent(&ws.Locale, req.Locale)
		setIfPresent(&ws.Preset, req.Preset)
		setIfPresent(&ws.ConversationStyle, req.ConversationStyle)
		setIfPresent(&ws.NoSearch, req.NoSearch)
		setIfPresent(&ws.GPT4Turbo, req.GPT4Turbo)
		setIfPresent(&ws.PersistentInput, req.PersistentInput)
		setIfPresent(&ws.Model, req.Model)
		return nil
	})
	if err != nil {
		ctrl.ErrorHandler(c, ctrl.statusForError(err), err)
		return
	}

	ws, err := ctrl.workspaces.Get(c.Param("id"))
	if err != nil {
		ctrl.ErrorHandler(c, ctrl.statusForError(err), err)
		return
	}
	c.JSON(http.StatusOK, ws)
}

func setIfPresent[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func (ctrl *Controller) DeleteWorkspaceHandler(c *gin.Context) {
	if err := ctrl.workspaces.Delete(c.Request.Context(), c.Param("id")); err != nil {
		ctrl.ErrorHandler(c, ctrl.statusForError(err), err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (ctrl *Controller) SwitchWorkspaceHandler(c *gin.Context) {
	if err := ctrl.workspaces.SwitchTo(c.Request.Context(), c.Param("id")); err != nil {
		ctrl.ErrorHandler(c, ctrl.statusForError(err), err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (ctrl *Controller) ExportWorkspaceHandler(c *gin.Context) {
	md, err := ctrl.workspaces.ExportMarkdown(c.Param("id"))
	if err != nil {
		ctrl.ErrorHandler(c, ctrl.statusForError(err), err)
		return
	}
	ws, _ := ctrl.workspaces.Get(c.Param("id"))
	c.Header("Content-Disposition", `attachment; filename="`+workspace.ExportFilename(ws.Title)+`"`)
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(md))
}

func (ctrl *Controller) WorkspaceStatusHandler(c *gin.Context) {
	if _, err := ctrl.workspaces.Get(c.Param("id")); err != nil {
		ctrl.ErrorHandler(c, ctrl.statusForError(err), err)
		return
	}
	resp := gin.H{"status": ctrl.workspaces.Status(c.Param("id"))}
	if lastErr, ok := ctrl.workspaces.LastError(c.Param("id")); ok {
		resp["last_err_type"] = lastErr.ErrType
		resp["last_err_msg"] = lastErr.ErrMsg
	}
	c.JSON(http.StatusOK, resp)
}

func (ctrl *Controller) AskHandler(c *gin.Context) {
	var options domain.AskOptions
	if err := c.ShouldBindJSON(&options); err != nil {
		ctrl.ErrorHandler(c, http.StatusBadRequest, err)
		return
	}

	result, err := ctrl.orch.Ask(c.Request.Context(), c.Param("id"), options)
	if err != nil {
		ctrl.ErrorHandler(c, ctrl.statusForError(err), err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (ctrl *Controller) attachReference(c *gin.Context, ref domain.DataReference) {
	err := ctrl.workspaces.Update(c.Request.Context(), c.Param("id"), func(ws *domain.Workspace) error {
		ws.DataReferences = append(ws.DataReferences, ref)
		return nil
	})
	if err != nil {
		ctrl.ErrorHandler(c, ctrl.statusForError(err), err)
		return
	}
	c.JSON(http.StatusCreated, ref)
}

type attachDocumentRequest struct {
	Path string `json:"path"`
	Text string `json:"text"`
	Ext  string `json:"ext"`
}

func (ctrl *Controller) AttachDocumentHandler(c *gin.Context) {
	var req attachDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ctrl.ErrorHandler(c, http.StatusBadRequest, err)
		return
	}

	text, ext := req.Text, req.Ext
	if req.Path != "" {
		result, err := reference.ReadDocument(req.Path)
		if err != nil {
			ctrl.ErrorHandler(c, http.StatusBadRequest, err)
			return
		}
		if result.Canceled {
			c.JSON(http.StatusOK, result)
			return
		}
		text, ext = result.Text, result.Ext
	}
	if text == "" {
		ctrl.ErrorHandler(c, http.StatusBadRequest, errors.New("either path or text is required"))
		return
	}
	ctrl.attachReference(c, reference.NewDocumentReference(text, ext))
}

type attachImageRequest struct {
	Base64 string `json:"base64"`
	Upload bool   `json:"upload"`
}

func (ctrl *Controller) AttachImageHandler(c *gin.Context) {
	var req attachImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ctrl.ErrorHandler(c, http.StatusBadRequest, err)
		return
	}
	if req.Base64 == "" {
		ctrl.ErrorHandler(c, http.StatusBadRequest, errors.New("base64 image data is required"))
		return
	}

	var uploader reference.ImageUploader
	if req.Upload {
		cfg := ctrl.config.Snapshot()
		ws, err := ctrl.workspaces.Get(c.Param("id"))
		if err != nil {
			ctrl.ErrorHandler(c, ctrl.statusForError(err), err)
			return
		}
		handle, err := ctrl.registry.Resolve(cfg, ws, domain.BackendNameSydney)
		if err == nil {
			if sydneyHandle, ok := handle.(*backend.SydneyHandle); ok {
				uploader = sydneyHandle
			}
		}
	}

	result, err := reference.IngestImageBase64(c.Request.Context(), req.Base64, uploader)
	if err != nil {
		ctrl.ErrorHandler(c, http.StatusBadRequest, err)
		return
	}
	ctrl.attachReference(c, reference.NewImageReference(result))
}

type attachWebpageRequest struct {
	URL string `json:"url"`
}

func (ctrl *Controller) AttachWebpageHandler(c *gin.Context) {
	var req attachWebpageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ctrl.ErrorHandler(c, http.StatusBadRequest, err)
		return
	}
	if req.URL == "" {
		ctrl.ErrorHandler(c, http.StatusBadRequest, errors.New("url is required"))
		return
	}

	content, err := reference.FetchWebpage(c.Request.Context(), req.URL, ctrl.config.Snapshot().Proxy)
	if err != nil {
		ctrl.ErrorHandler(c, http.StatusBadGateway, err)
		return
	}
	ctrl.attachReference(c, reference.NewWebpageReference(req.URL, content))
}

type attachYoutubeRequest struct {
	URL          string `json:"url"`
	LanguageCode string `json:"language_code"`
}

func (ctrl *Controller) AttachYoutubeTranscriptHandler(c *gin.Context) {
	var req attachYoutubeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ctrl.ErrorHandler(c, http.StatusBadRequest, err)
		return
	}

	client, err := reference.NewYoutubeClient(ctrl.config.Snapshot().Proxy)
	if err != nil {
		ctrl.ErrorHandler(c, http.StatusInternalServerError, err)
		return
	}
	video, err := client.LoadVideo(c.Request.Context(), req.URL)
	if err != nil {
		ctrl.ErrorHandler(c, http.StatusBadGateway, err)
		return
	}
	if len(video.Captions) == 0 {
		ctrl.ErrorHandler(c, http.StatusNotFound, reference.ErrNoCaptions)
		return
	}

	caption := video.Captions[0]
	if req.LanguageCode != "" {
		found := false
		for _, cand := range video.Captions {
			if cand.LanguageCode == req.LanguageCode {
				caption = cand
				found = true
				break
			}
		}
		if !found {
			ctrl.ErrorHandler(c, http.StatusNotFound, fmt.Errorf("no caption for language %q", req.LanguageCode))
			return
		}
	}

	segments, err := client.GetTranscript(c.Request.Context(), caption)
	if err != nil {
		ctrl.ErrorHandler(c, http.StatusBadGateway, err)
		return
	}
	ctrl.attachReference(c, reference.NewVideoTranscriptReference(video.Details.Title, caption, segments))
}

func (ctrl *Controller) DetachReferenceHandler(c *gin.Context) {
	uuid := c.Param("uuid")
	found := false
	err := ctrl.workspaces.Update(c.Request.Context(), c.Param("id"), func(ws *domain.Workspace) error {
		kept := ws.DataReferences[:0]
		for _, ref := range ws.DataReferences {
			if ref.UUID == uuid {
				found = true
				continue
			}
			kept = append(kept, ref)
		}
		ws.DataReferences = kept
		return nil
	})
	if err != nil {
		ctrl.ErrorHandler(c, ctrl.statusForError(err), err)
		return
	}
	if !found {
		ctrl.ErrorHandler(c, http.StatusNotFound, fmt.Errorf("reference %s: %w", uuid, common.ErrNotFound))
		return
	}
	c.Status(http.StatusNoContent)
}

func (ctrl *Controller) ListBackendsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"backends": ctrl.registry.List(ctrl.config.Snapshot())})
}

func (ctrl *Controller) YoutubeVideoHandler(c *gin.Context) {
	videoURL := c.Query("url")
	if videoURL == "" {
		ctrl.ErrorHandler(c, http.StatusBadRequest, errors.New("url query parameter is required"))
		return
	}

	client, err := reference.NewYoutubeClient(ctrl.config.Snapshot().Proxy)
	if err != nil {
		ctrl.ErrorHandler(c, http.StatusInternalServerError, err)
		return
	}
	video, err := client.LoadVideo(c.Request.Context(), videoURL)
	if err != nil {
		ctrl.ErrorHandler(c, http.StatusBadGateway, err)
		return
	}
	c.JSON(http.StatusOK, video)
}

type tokenCountRequest struct {
	Text string `json:"text"`
}

func (ctrl *Controller) TokenCountHandler(c *gin.Context) {
	var req tokenCountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ctrl.ErrorHandler(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": common.EstimateTokens(req.Text)})
}

// resolveSydneyHandle builds the built-in backend handle for operations only
// it supports, such as media generation and image hosting.
func (ctrl *Controller) resolveSydneyHandle(ws domain.Workspace) (*backend.SydneyHandle, error) {
	handle, err := ctrl.registry.Resolve(ctrl.config.Snapshot(), ws, domain.BackendNameSydney)
	if err != nil {
		return nil, err
	}
	sydneyHandle, ok := handle.(*backend.SydneyHandle)
	if !ok {
		return nil, fmt.Errorf("backend %s cannot serve media requests", handle.Name())
	}
	return sydneyHandle, nil
}

func (ctrl *Controller) GenerateImageHandler(c *gin.Context) {
	var generative domain.GenerativeImage
	if err := c.ShouldBindJSON(&generative); err != nil {
		ctrl.ErrorHandler(c, http.StatusBadRequest, err)
		return
	}
	if generative.URL == "" {
		ctrl.ErrorHandler(c, http.StatusBadRequest, errors.New("url is required"))
		return
	}

	handle, err := ctrl.resolveSydneyHandle(domain.Workspace{})
	if err != nil {
		ctrl.ErrorHandler(c, http.StatusInternalServerError, err)
		return
	}
	result, err := handle.GenerateImage(c.Request.Context(), generative)
	if err != nil {
		ctrl.ErrorHandler(c, http.StatusBadGateway, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (ctrl *Controller) GenerateMusicHandler(c *gin.Context) {
	var generative domain.GenerativeMusic
	if err := c.ShouldBindJSON(&generative); err != nil {
		ctrl.ErrorHandler(c, http.StatusBadRequest, err)
		return
	}
	if generative.IframeID == "" || generative.RequestID == "" {
		ctrl.ErrorHandler(c, http.StatusBadRequest, errors.New("iframeid and requestid are required"))
		return
	}

	handle, err := ctrl.resolveSydneyHandle(domain.Workspace{})
	if err != nil {
		ctrl.ErrorHandler(c, http.StatusInternalServerError, err)
		return
	}
	result, err := handle.GenerateMusic(c.Request.Context(), generative)
	if err != nil {
		ctrl.ErrorHandler(c, http.StatusBadGateway, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (ctrl *Controller) CheckUpdateHandler(c *gin.Context) {
	result, err := ctrl.checker.Check(c.Request.Context())
	if err != nil {
		ctrl.ErrorHandler(c, http.StatusBadGateway, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
