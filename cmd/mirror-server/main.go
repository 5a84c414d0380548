// Command mirror-server serves works recorded on disk through the same
// endpoints and envelope shape as the upstream API, for offline runs.
//
// Layout of the data directory:
//
//	<dir>/<slug>/work.json             work payload
//	<dir>/<slug>/chapters.json         chapter list payload
//	<dir>/<slug>/chapter/<vol>_<num>.json  one chapter payload each
//	<dir>/<slug>/cover.(jpg|png|webp)  optional cover image
//
// Payload files hold the bare "data" value; the server wraps them.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

func main() {
	addr := flag.String("addr", ":9000", "listen address")
	dir := flag.String("dir", "data/mirror", "directory with recorded works")
	public := flag.String("public-url", "http://localhost:9000", "URL clients use to reach this server")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil)).With("component", "mirror")
	gin.SetMode(gin.ReleaseMode)

	m := &mirror{Dir: *dir, PublicURL: strings.TrimRight(*public, "/")}
	logger.Info("mirror-server listening", "addr", *addr, "dir", *dir)
	if err := http.ListenAndServe(*addr, m.router()); err != nil {
		logger.Error("serve failed", "error", err)
		os.Exit(1)
	}
}

type mirror struct {
	Dir       string
	PublicURL string
}

var coverExts = []string{".jpg", ".jpeg", ".png", ".webp", ".gif"}

func (m *mirror) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api/manga")
	api.GET("/:slug", m.work)
	api.GET("/:slug/chapters", func(c *gin.Context) {
		m.serveEnvelope(c, filepath.Join(m.workDir(c), "chapters.json"))
	})
	api.GET("/:slug/chapter", func(c *gin.Context) {
		name := safeName(c.Query("volume")) + "_" + safeName(c.Query("number")) + ".json"
		m.serveEnvelope(c, filepath.Join(m.workDir(c), "chapter", name))
	})
	r.GET("/covers/:slug", m.cover)
	return r
}

func (m *mirror) workDir(c *gin.Context) string {
	return filepath.Join(m.Dir, safeName(c.Param("slug")))
}

// work serves work.json, pointing the cover at this server when the payload
// has none and a cover file exists.
func (m *mirror) work(c *gin.Context) {
	dir := m.workDir(c)
	b, ok := readPayload(c, filepath.Join(dir, "work.json"))
	if !ok {
		return
	}

	var work map[string]any
	if err := json.Unmarshal(b, &work); err == nil {
		cover, _ := work["cover"].(map[string]any)
		if cover == nil || cover["default"] == nil || cover["default"] == "" {
			if findCover(dir) != "" {
				work["cover"] = map[string]any{"default": m.PublicURL + "/covers/" + filepath.Base(dir)}
				if rewritten, err := json.Marshal(work); err == nil {
					b = rewritten
				}
			}
		}
	}
	writeEnvelope(c, b)
}

func (m *mirror) cover(c *gin.Context) {
	path := findCover(m.workDir(c))
	if path == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no cover"})
		return
	}
	c.File(path)
}

func (m *mirror) serveEnvelope(c *gin.Context, path string) {
	if b, ok := readPayload(c, path); ok {
		writeEnvelope(c, b)
	}
}

func readPayload(c *gin.Context, path string) ([]byte, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not recorded"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return nil, false
	}
	// validate JSON so a bad file doesn't silently break clients
	if !json.Valid(b) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s: invalid JSON", filepath.Base(path))})
		return nil, false
	}
	return b, true
}

func writeEnvelope(c *gin.Context, payload []byte) {
	body, err := json.Marshal(map[string]json.RawMessage{"data": payload})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

func findCover(dir string) string {
	for _, ext := range coverExts {
		p := filepath.Join(dir, "cover"+ext)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// safeName keeps a request value inside the data directory.
func safeName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(s)
	if s == "" {
		return "_"
	}
	return s
}
