package handler

import (
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kdrag0n/earlypilot/internal/content"
	"github.com/kdrag0n/earlypilot/internal/domain"
	httpmiddleware "github.com/kdrag0n/earlypilot/internal/http/middleware"
	"github.com/kdrag0n/earlypilot/internal/service"
)

const defaultMintHours = 48

// ContentHandler serves exclusive files to authorized requests. It trusts the
// benefits middleware for the access decision and only deals in files, the
// outbound filter, and the audit log.
type ContentHandler struct {
	Root      string
	Filter    content.Filter
	AccessLog *service.AccessLog
	Grants    *service.GrantService
	Logger    *zap.Logger
}

// Serve streams one exclusive file, or mints a share link when the creator
// asks for one.
func (h *ContentHandler) Serve(c *gin.Context) {
	access, ok := httpmiddleware.GetAccess(c)
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	name, ok := sanitizeFileName(c.Param("filepath"))
	if !ok {
		c.String(http.StatusNotFound, "File not found.")
		return
	}

	// The creator can turn any exclusive URL into a shareable time-limited
	// link instead of downloading it.
	if access.IsCreator && c.Query("grant_tag") != "" {
		h.mintGrant(c)
		return
	}

	file, err := os.Open(filepath.Join(h.Root, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.String(http.StatusNotFound, "File not found.")
			return
		}
		h.log().Error("failed to open exclusive file", zap.String("file", name), zap.Error(err))
		c.String(http.StatusInternalServerError, "Unable to serve file.")
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil || info.IsDir() {
		c.String(http.StatusNotFound, "File not found.")
		return
	}

	hash, err := hashFile(file)
	if err != nil {
		h.log().Error("failed to hash exclusive file", zap.String("file", name), zap.Error(err))
		c.String(http.StatusInternalServerError, "Unable to serve file.")
		return
	}

	// Record before streaming: a client that disconnects mid-transfer may
	// still have received the bytes.
	startTime := time.Now()
	h.AccessLog.Record(c.Request.Context(), access.Type, access.Tag, name, hash, c.ClientIP(), startTime)

	header := c.Writer.Header()
	header.Set("Content-Type", contentTypeFor(name))
	header.Set("Content-Length", strconv.FormatInt(h.Filter.FinalLength(info.Size()), 10))
	header.Set("Content-Disposition", `attachment; filename="`+filepath.Base(name)+`"`)
	header.Set("X-Content-Digest", domain.DownloadHashAlgorithm+"="+hash)
	header.Set("Cache-Control", "private, no-store")
	c.Status(http.StatusOK)

	if err := h.Filter.Apply(c.Writer, file); err != nil {
		// Too late for an error status; the event above already covers the
		// partial transfer.
		h.log().Warn("exclusive file stream interrupted",
			zap.String("file", name),
			zap.String("tag", access.Tag),
			zap.Error(err),
		)
	}
}

func (h *ContentHandler) mintGrant(c *gin.Context) {
	tag := c.Query("grant_tag")

	durationHours := float64(defaultMintHours)
	if raw := c.Query("expires"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.String(http.StatusBadRequest, "Invalid expires value.")
			return
		}
		durationHours = parsed
	}

	url, err := h.Grants.CreateURL(c.Request.Context(), c.Request.URL.Path, tag, domain.GrantTypeCreator, durationHours)
	if err != nil {
		c.String(http.StatusBadRequest, "Unable to create grant: %v", err)
		return
	}
	c.String(http.StatusOK, url)
}

// sanitizeFileName normalizes the wildcard path parameter and rejects
// anything that could escape the content root.
func sanitizeFileName(raw string) (string, bool) {
	name := strings.TrimPrefix(raw, "/")
	if name == "" {
		return "", false
	}
	cleaned := filepath.Clean(name)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") || filepath.IsAbs(cleaned) {
		return "", false
	}
	return cleaned, true
}

func hashFile(file *os.File) (string, error) {
	hasher := sha512.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func contentTypeFor(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func (h *ContentHandler) log() *zap.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return zap.L()
}
