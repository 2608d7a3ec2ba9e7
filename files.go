package auth

import (
	"embed"
	"io/fs"
	"net/http"

	"github.com/gofiber/template/django/v3"
)

//go:embed data/views
var viewsFS embed.FS

// GetViewsFS returns the bundled templates rooted at the views directory
func GetViewsFS() fs.FS {
	sub, err := fs.Sub(viewsFS, "data/views")
	if err != nil {
		panic(err)
	}
	return sub
}

// NewViewEngine returns a django engine over the bundled templates. Pass
// it as fiber.Config.Views when building the router adapter.
func NewViewEngine() *django.Engine {
	return django.NewFileSystem(http.FS(GetViewsFS()), ".html")
}
