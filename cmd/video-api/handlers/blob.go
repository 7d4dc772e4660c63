package handlers

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
)

// SignedBlobReader resolves URLs minted by the in-memory object store
type SignedBlobReader interface {
	OpenSigned(raw string) ([]byte, string, error)
}

// BlobHandler serves signed URLs when blobs live in process memory
type BlobHandler struct {
	blobs  SignedBlobReader
	origin string
}

// NewBlobHandler serves blobs whose signed URLs start with publicURL
func NewBlobHandler(blobs SignedBlobReader, publicURL string) (*BlobHandler, error) {
	u, err := url.Parse(publicURL)
	if err != nil {
		return nil, err
	}
	return &BlobHandler{blobs: blobs, origin: u.Scheme + "://" + u.Host}, nil
}

// ServeBlob returns the blob addressed by a signed URL
// GET /blobs/:bucket/*
func (h *BlobHandler) ServeBlob(c echo.Context) error {
	req := c.Request()
	raw := h.origin + req.URL.EscapedPath() + "?" + req.URL.RawQuery

	data, contentType, err := h.blobs.OpenSigned(raw)
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	return c.Blob(http.StatusOK, contentType, data)
}
