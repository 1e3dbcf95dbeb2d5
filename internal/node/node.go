package node

import "github.com/gin-gonic/gin"

// Node is an HTTP-addressable runtime surface.
type Node interface {
	NodeID() string
	Kind() string
	HTTPRouter() *gin.Engine
}
