package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Body is the JSON envelope of every HTTP reply.
type Body struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OK sends 200 with data.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Created sends 201 with data.
func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

// NoContent sends 204.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Fail sends an error envelope with the given status and aborts the chain.
func Fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, Body{Success: false, Error: msg})
}

func BadRequest(c *gin.Context, msg string)         { Fail(c, http.StatusBadRequest, msg) }
func Unauthorized(c *gin.Context, msg string)       { Fail(c, http.StatusUnauthorized, msg) }
func Forbidden(c *gin.Context, msg string)          { Fail(c, http.StatusForbidden, msg) }
func NotFound(c *gin.Context, msg string)           { Fail(c, http.StatusNotFound, msg) }
func Conflict(c *gin.Context, msg string)           { Fail(c, http.StatusConflict, msg) }
func TooLarge(c *gin.Context, msg string)           { Fail(c, http.StatusRequestEntityTooLarge, msg) }
func ServiceUnavailable(c *gin.Context, msg string) { Fail(c, http.StatusServiceUnavailable, msg) }
func Internal(c *gin.Context, msg string)           { Fail(c, http.StatusInternalServerError, msg) }
