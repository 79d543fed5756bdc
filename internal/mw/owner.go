package mw

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"production-status-backend/internal/model"
)

// HeaderOwnerID carries the authenticated tenant, set by the upstream gateway.
const HeaderOwnerID = "X-Owner-ID"

const ownerKey = "owner"

// OwnerLookup resolves a live owner by id.
type OwnerLookup func(ctx context.Context, id int64) (*model.Owner, error)

// Owner rejects requests without a known owner and stores it on the context.
func Owner(lookup OwnerLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.GetHeader(HeaderOwnerID), 10, 64)
		if err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid " + HeaderOwnerID})
			return
		}
		owner, err := lookup(c.Request.Context(), id)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown owner"})
			return
		}
		c.Set(ownerKey, owner)
		c.Next()
	}
}

// CurrentOwner returns the owner stored by Owner.
func CurrentOwner(c *gin.Context) *model.Owner {
	v, ok := c.Get(ownerKey)
	if !ok {
		return nil
	}
	owner, _ := v.(*model.Owner)
	return owner
}
