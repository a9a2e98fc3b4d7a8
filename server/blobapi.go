package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/Sarthakshelke9895/Cloud/model"
	"github.com/Sarthakshelke9895/Cloud/protocol"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	// multipart framing and metadata fields allowed on top of the file itself
	uploadFormOverhead = 1 << 20

	firstReadSize = 32 * 1024
)

func (s *Server) handleUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.Blobs.MaxBlobSize()+uploadFormOverhead)

	upload, err := protocol.UploadFromRequest(c.Request, s.Blobs.MaxBlobSize())
	if err != nil {
		renderError(err, c)
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()
	blob, err := s.Blobs.Upload(ctx, upload)
	if err != nil {
		renderError(err, c)
		return
	}

	uploadsCounter.Inc()
	uploadBytesCounter.Add(float64(blob.Length))
	c.JSON(http.StatusOK, protocol.NewUploadResult(blob))
}

func (s *Server) handleListFiles(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	files, err := s.Blobs.List(ctx)
	if err != nil {
		renderError(err, c)
		return
	}
	c.JSON(http.StatusOK, files)
}

func (s *Server) handleHeadFile(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	blob, err := s.Blobs.Stat(ctx, c.Param(paramFileID))
	if err != nil {
		renderError(err, c)
		return
	}
	protocol.WriteBlobHeaders(c.Writer.Header(), blob, protocol.DownloadRequested(c.Request))
	c.Status(http.StatusOK)
}

func (s *Server) handleGetFile(c *gin.Context) {
	blob, reader, err := s.Blobs.Open(c.Request.Context(), c.Param(paramFileID))
	if err != nil {
		renderError(err, c)
		return
	}
	defer reader.Close()

	// Failures on the first chunk can still be reported with a proper status
	first := make([]byte, firstReadSize)
	n, err := io.ReadFull(reader, first)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		renderError(err, c)
		return
	}

	protocol.WriteBlobHeaders(c.Writer.Header(), blob, protocol.DownloadRequested(c.Request))
	c.Status(http.StatusOK)

	written, err := c.Writer.Write(first[:n])
	if err == nil && n == firstReadSize {
		var rest int64
		rest, err = io.Copy(c.Writer, reader)
		written += int(rest)
	}
	if err != nil {
		downloadAbortsCounter.Inc()
		log.WithFields(logrus.Fields{"blob_id": blob.ID, "bytes_written": written, "blob_length": blob.Length}).
			WithError(err).Warn("Download aborted")
		c.Abort()
		return
	}
	downloadsCounter.Inc()
}

func (s *Server) handleDeleteFile(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	if err := s.Blobs.Delete(ctx, c.Param(paramFileID)); err != nil {
		renderError(err, c)
		return
	}
	deletesCounter.Inc()
	c.JSON(http.StatusOK, &protocol.MessageResult{Message: protocol.MessageDeleted})
}

func (s *Server) handleShareFile(c *gin.Context) {
	blobID, err := model.ParseBlobID(c.Param(paramFileID))
	if err != nil {
		renderError(err, c)
		return
	}
	c.JSON(http.StatusOK, &protocol.ShareResult{ShareURL: s.clientOrigin + "/preview/" + blobID})
}

func renderError(err error, c *gin.Context) {
	if gin.Mode() == gin.DebugMode {
		log.WithError(err).Debug("Error occurred in request")
	}

	var serverErr *Error
	var validationErr model.ValidationError
	switch {
	case errors.As(err, &serverErr):
		c.JSON(serverErr.HTTPStatus, &protocol.ErrorResult{Error: serverErr.Message})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, &protocol.ErrorResult{Error: validationErr.UserMessage()})
	case errors.Is(err, model.ErrBlobNotFound):
		c.JSON(http.StatusNotFound, &protocol.ErrorResult{Error: err.Error()})
	case errors.Is(err, model.ErrIDExhausted):
		renderError(ErrIDExhausted, c)
	case errors.Is(err, context.DeadlineExceeded):
		log.WithError(err).Warn("Request timed out")
		renderError(ErrRequestTimeout, c)
	case errors.Is(err, context.Canceled):
		renderError(ErrRequestCancelled, c)
	default:
		log.WithError(err).Error("Internal server error")
		_ = c.Error(err)
		renderError(ErrInternal, c)
	}
}

func createBlobAPI(s *Server) {
	s.Engine.POST("/upload", s.handleUpload)
	s.Engine.GET("/share/:id", s.handleShareFile)

	files := s.Engine.Group("/files")
	{
		files.GET("", s.handleListFiles)
		files.GET("/:id", s.handleGetFile)
		files.HEAD("/:id", s.handleHeadFile)
		files.DELETE("/:id", s.handleDeleteFile)
	}
}
