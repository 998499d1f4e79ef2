package router

import (
	"github.com/gin-gonic/gin"

	"github.com/joefazee/parimutuel/internal/deps"
)

// MountFunc represents a function that mounts routes for a module. Public
// routes need no credentials; authenticated routes run behind the auth
// middleware given to the Mounter.
type MountFunc func(public, authenticated *gin.RouterGroup, container *deps.Container)

type Mounter struct {
	container *deps.Container
	auth      gin.HandlerFunc
	basePath  string
}

func NewMounter(container *deps.Container, auth gin.HandlerFunc) *Mounter {
	return &Mounter{container: container, auth: auth, basePath: "/api/v1"}
}

// Mount registers every module under the API base path.
func (m *Mounter) Mount(engine *gin.Engine, modules ...MountFunc) {
	public := engine.Group(m.basePath)

	authenticated := engine.Group(m.basePath)
	if m.auth != nil {
		authenticated.Use(m.auth)
	}

	for _, mount := range modules {
		mount(public, authenticated, m.container)
	}
}
