package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	ingestdomain "github.com/restorehq/restore/internal/ingest/domain"
	"github.com/restorehq/restore/internal/partition"
)

func (s *Server) UploadDemand(c *gin.Context) {
	s.upload(c, partition.KindDemand)
}

func (s *Server) UploadSales(c *gin.Context) {
	s.upload(c, partition.KindSales)
}

func (s *Server) upload(c *gin.Context, kind partition.Kind) {
	c.Set(contextUploadKindKey, string(kind))

	fileHeader, err := c.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			AbortWithError(c, ingestdomain.ErrMissingFile)
			return
		}
		AbortWithError(c, bodyError(err))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	defer file.Close()

	result, err := s.ingestSvc.Upload(c.Request.Context(), ingestdomain.UploadRequest{
		CustomerID:  strings.TrimSpace(c.PostForm("email")),
		Kind:        kind,
		FileName:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Body:        file,
		RequestID:   requestKey(c),
		Username:    strings.TrimSpace(c.PostForm("username")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
