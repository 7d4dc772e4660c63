package routes

import (
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pulse/vidmod/cmd/video-api/container"
	"github.com/pulse/vidmod/cmd/video-api/handlers"
	"github.com/pulse/vidmod/cmd/video-api/middleware"
	"github.com/pulse/vidmod/common/objectstore"

	commonmw "github.com/pulse/vidmod/common/middleware"
)

// uploadAction names the rate limited upload budget
const uploadAction = "upload"

// RegisterVideoRoutes registers the authenticated /video endpoints
func RegisterVideoRoutes(e *echo.Echo, c *container.Container) {
	cfg := c.Components.Config
	log := c.Components.Logger

	h := handlers.NewVideoHandler(c.IngestionService, c.VideoService, c.AccessService, cfg.Upload, log)
	stream := handlers.NewStreamHandler(c.IngestionService, cfg.Upload.MaxBytes, log)

	var upload []echo.MiddlewareFunc
	if c.RateLimiter != nil {
		upload = append(upload, commonmw.UserRateLimitMiddleware(c.RateLimiter, uploadAction, c.UploadPolicy, log))
	}

	videos := e.Group("/video", middleware.Authenticate(c.Identity))
	{
		videos.POST("/upload-video/", h.UploadVideo, upload...)  // POST /video/upload-video/
		videos.GET("/ws/upload", stream.Upload, upload...)       // GET /video/ws/upload (websocket)
		videos.GET("/getVideos", h.GetVideos)                    // GET /video/getVideos
		videos.GET("/getVideo/:id", h.GetVideo)                  // GET /video/getVideo/{id}
		videos.DELETE("/deleteVideo/:id", h.DeleteVideo)         // DELETE /video/deleteVideo/{id}
		videos.GET("/signed-url/", h.SignedURL)                  // GET /video/signed-url/?video_id=
	}
}

// RegisterBlobRoutes serves signed URLs when blobs are kept in memory
func RegisterBlobRoutes(e *echo.Echo, c *container.Container) error {
	memory, ok := c.Store.(*objectstore.MemoryStore)
	if !ok {
		return nil
	}

	publicURL := c.Components.Config.ObjectStore.PublicURL
	h, err := handlers.NewBlobHandler(memory, publicURL)
	if err != nil {
		return err
	}

	u, err := url.Parse(publicURL)
	if err != nil {
		return err
	}
	e.GET(strings.TrimSuffix(u.Path, "/")+"/*", h.ServeBlob)
	return nil
}
