package jobs

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ranobepub/internal/auth"
)

type Handler struct {
	Registry *Registry
}

func NewHandler(reg *Registry) *Handler {
	return &Handler{Registry: reg}
}

// RegisterRoutes mounts the job endpoints. protect guards submission.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, protect gin.HandlerFunc) {
	if protect != nil {
		rg.POST("/jobs", protect, h.submit)
	} else {
		rg.POST("/jobs", h.submit)
	}
	rg.GET("/jobs/:id", h.get)
	rg.GET("/jobs/:id/artifact", h.artifact)
}

type submitReq struct {
	URL string `json:"url"`
}

func (h *Handler) submit(c *gin.Context) {
	var req submitReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url required"})
		return
	}

	var submitter string
	if claims := auth.MustGetClaims(c); claims != nil {
		submitter = claims.Client
	}

	job, err := h.Registry.Submit(req.URL, submitter)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, job)
}

func (h *Handler) get(c *gin.Context) {
	job, err := h.Registry.Get(c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *Handler) artifact(c *gin.Context) {
	name, data, ok, err := h.Registry.Artifact(c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "artifact not ready"})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "application/epub+zip", data)
}
