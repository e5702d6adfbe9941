package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/switchboard/internal/session"
)

// SessionHeader carries the session identifier on every non-handshake
// request.
const SessionHeader = "Switchboard-Session"

// registerRPCRoutes mounts the session transport. A POST with an
// `initialize` request and no session header opens a session; every other
// request is routed to its existing handler. DELETE closes the session.
func registerRPCRoutes(router *gin.Engine, registry *session.Registry) {
	router.POST("/rpc", handleRPC(registry))
	router.DELETE("/rpc", handleRPCClose(registry))
}

func handleRPC(registry *session.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req session.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed JSON-RPC request"})
			return
		}

		id := c.GetHeader(SessionHeader)

		// Only a fresh handshake may create a session. Anything else with
		// an unknown or closed id is rejected, never silently re-admitted.
		if id == "" {
			if req.Method != "initialize" {
				c.JSON(http.StatusOK, sessionNotFoundResponse(&req, "missing session header"))
				return
			}
			handler := registry.Create()
			c.Header(SessionHeader, handler.ID())
			c.JSON(http.StatusOK, handler.Handle(&req))
			return
		}

		handler, err := registry.Lookup(id)
		if err != nil {
			c.JSON(http.StatusOK, sessionNotFoundResponse(&req, err.Error()))
			return
		}
		c.Header(SessionHeader, handler.ID())
		c.JSON(http.StatusOK, handler.Handle(&req))
	}
}

func handleRPCClose(registry *session.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(SessionHeader)
		if id == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing session header"})
			return
		}
		if err := registry.Remove(id); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func sessionNotFoundResponse(req *session.Request, message string) *session.Response {
	return &session.Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Error: &session.ErrorObject{
			Code:    -32600,
			Message: message,
			Data:    &session.ErrorData{Kind: session.KindSessionNotFound},
		},
	}
}
