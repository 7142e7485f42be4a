package gridapi

import (
	"github.com/gorilla/mux"
	"github.com/uptrace/bun"
	"gorm.io/gorm"

	"github.com/ahmedsaleh747/go-creative-utils/pkg/common/adapters/database"
	"github.com/ahmedsaleh747/go-creative-utils/pkg/modelregistry"
)

// NewHandlerWithGORM creates a new Handler with GORM adapter
func NewHandlerWithGORM(db *gorm.DB, registry *modelregistry.DefaultModelRegistry) *Handler {
	return NewHandler(database.NewGormAdapter(db), registry)
}

// NewHandlerWithBun creates a new Handler with Bun adapter
func NewHandlerWithBun(db *bun.DB, registry *modelregistry.DefaultModelRegistry) *Handler {
	return NewHandler(database.NewBunAdapter(db), registry)
}

// SetupMuxRoutes mounts the API under /api. The middlewares wrap every API route.
//
//	GET    /api/config/{modelType}
//	GET    /api/{entity}
//	POST   /api/{entity}
//	GET    /api/{entity}/{id}
//	PUT    /api/{entity}/{id}
//	DELETE /api/{entity}/{id}
//	GET    /api/{entity}/{id}/{action}
func SetupMuxRoutes(muxRouter *mux.Router, handler *Handler, middlewares ...mux.MiddlewareFunc) *mux.Router {
	api := muxRouter.PathPrefix("/api").Subrouter()
	api.Use(middlewares...)

	api.HandleFunc("/config/{modelType}", handler.HandleConfig).Methods("GET")
	api.HandleFunc("/{entity}", handler.HandleList).Methods("GET")
	api.HandleFunc("/{entity}", handler.HandleCreate).Methods("POST")
	api.HandleFunc("/{entity}/{id}", handler.HandleGet).Methods("GET")
	api.HandleFunc("/{entity}/{id}", handler.HandleUpdate).Methods("PUT")
	api.HandleFunc("/{entity}/{id}", handler.HandleDelete).Methods("DELETE")
	api.HandleFunc("/{entity}/{id}/{action}", handler.HandleAction).Methods("GET")
	return api
}
