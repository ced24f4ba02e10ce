package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetSubscription(c *gin.Context) {
	sub, err := s.subscriptionSvc.Get(c.Request.Context(), identityFromContext(c).UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sub.Effective(s.clock.Now())})
}

// CancelAutoRenew stops renewal; premium access stays until expiry.
func (s *Server) CancelAutoRenew(c *gin.Context) {
	sub, err := s.subscriptionSvc.CancelAutoRenew(c.Request.Context(), identityFromContext(c).UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sub})
}
