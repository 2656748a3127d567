package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	debughandler "github.com/mirrorwell/exhibit/backend/internal/handler/debug"
	motionhandler "github.com/mirrorwell/exhibit/backend/internal/handler/motion"
	personahandler "github.com/mirrorwell/exhibit/backend/internal/handler/persona"
	relayhandler "github.com/mirrorwell/exhibit/backend/internal/handler/relay"
	uploadhandler "github.com/mirrorwell/exhibit/backend/internal/handler/upload"
	middlewarePkg "github.com/mirrorwell/exhibit/backend/internal/middleware"
	personamodel "github.com/mirrorwell/exhibit/backend/internal/model/persona"
	"github.com/mirrorwell/exhibit/backend/internal/service/assets"
	motionsvc "github.com/mirrorwell/exhibit/backend/internal/service/motion"
	personasvc "github.com/mirrorwell/exhibit/backend/internal/service/persona"
	relaysvc "github.com/mirrorwell/exhibit/backend/internal/service/relay"
	"github.com/mirrorwell/exhibit/backend/internal/service/session"
	"github.com/mirrorwell/exhibit/backend/pkg/utils"
)

// Deps carries everything the router wires into handlers. LLM-facing fields
// are interfaces so the server degrades gracefully when no model is
// configured.
type Deps struct {
	Registry  *session.Registry
	Cache     *assets.Cache
	Store     personamodel.Store
	Builder   *personasvc.Builder
	Evolver   *personasvc.Evolver
	Corpus    *motionsvc.Corpus
	Hub       *relaysvc.Hub
	Faces     uploadhandler.Identifier
	Chatter   personahandler.Chatter
	Reactor   motionhandler.Reactor
	UploadDir string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	uploads := uploadhandler.New(deps.Registry, deps.Cache, deps.Builder, deps.Faces, deps.Hub, deps.UploadDir)
	personas := personahandler.New(deps.Store, deps.Cache, deps.Builder, deps.Chatter, deps.UploadDir)
	motions := motionhandler.New(deps.Corpus, deps.Builder, deps.Evolver, deps.Reactor)
	debugging := debughandler.New(deps.Registry, deps.Cache, deps.Store, deps.Builder)

	r.Route("/api", func(api chi.Router) {
		uploads.RegisterRoutes(api)
		personas.RegisterRoutes(api)
		motions.RegisterRoutes(api)
		debugging.RegisterRoutes(api)

		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
				"ok":   true,
				"time": time.Now().UTC().Format(time.RFC3339),
			})
		})
	})

	relayhandler.New(deps.Hub).RegisterRoutes(r)

	return r
}
