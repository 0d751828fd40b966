package local

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"docvault/internal/shared/server/respond"
	"docvault/internal/shared/storage/object"
)

// Handler serves blobs behind URLs produced by SignedURL.
// Mount as GET {BlobRoutePrefix}/:bucket/*key.
func (s *Store) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		bucket := c.Param("bucket")
		key := strings.TrimPrefix(c.Param("key"), "/")
		exp := c.Query("exp")
		name := c.Query("name")

		if !s.verify(bucket, key, exp, name, c.Query("sig")) {
			respond.Error(c, http.StatusForbidden, "forbidden", "invalid or expired signature", nil)
			return
		}

		rc, err := s.Open(c.Request.Context(), bucket, key)
		if err != nil {
			if errors.Is(err, object.ErrObjectNotFound) {
				respond.Error(c, http.StatusNotFound, "not_found", "object not found", nil)
				return
			}
			respond.Error(c, http.StatusBadRequest, "bad_request", "invalid object key", nil)
			return
		}
		defer rc.Close()

		if name != "" {
			c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		}
		c.Header("Content-Type", s.ContentType(bucket, key))
		c.Status(http.StatusOK)
		_, _ = io.Copy(c.Writer, rc)
	}
}
