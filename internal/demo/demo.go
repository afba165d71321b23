// Package demo serves the greeting endpoint.
package demo

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	Path     = "/demo"
	Greeting = "Hello World"
)

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET(Path, h.demo)
}

func (h *Handler) demo(c *gin.Context) {
	c.String(http.StatusOK, Greeting)
}
