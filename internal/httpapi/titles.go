package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"xdao.co/titlegate/titles"
)

type createBody struct {
	// ID is rejected: the gateway assigns identifiers.
	ID *json.RawMessage `json:"id"`
	titles.CreateRequest
}

func (h *handler) createTitle(c *gin.Context) {
	var body createBody
	if !bindJSON(c, &body) {
		return
	}
	if body.ID != nil {
		respondError(c, http.StatusBadRequest, "ValidationFailed", "id is assigned by the gateway and must not be sent")
		return
	}
	created, err := h.titles.Create(c.Request.Context(), body.CreateRequest)
	if err != nil {
		respondKind(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *handler) readTitle(c *gin.Context) {
	rec, err := h.titles.Read(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondKind(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *handler) listTitles(c *gin.Context) {
	recs, err := h.titles.List(c.Request.Context())
	if err != nil {
		respondKind(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, recs)
}

func (h *handler) updateTitle(c *gin.Context) {
	var req titles.UpdateRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.titles.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondKind(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": out})
}

func (h *handler) transferTitle(c *gin.Context) {
	var req titles.TransferRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.titles.Transfer(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondKind(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": out})
}

func (h *handler) titleDocument(c *gin.Context) {
	doc, rec, err := h.titles.Document(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondKind(c, h.log, err)
		return
	}
	c.Header("X-Content-CID", rec.DocumentAddress)
	c.Data(http.StatusOK, http.DetectContentType(doc), doc)
}

// bindJSON decodes the body into v, answering 413 or 400 itself on failure.
func bindJSON(c *gin.Context, v any) bool {
	err := c.ShouldBindJSON(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respondError(c, http.StatusRequestEntityTooLarge, "ValidationFailed",
			fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		return false
	}
	respondError(c, http.StatusBadRequest, "ValidationFailed", "malformed request body: "+err.Error())
	return false
}
