package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"html"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gorilla/mux"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"gorm.io/gorm"
	gormlog "gorm.io/gorm/logger"

	"github.com/ahmedsaleh747/go-creative-utils/pkg/common"
	"github.com/ahmedsaleh747/go-creative-utils/pkg/common/adapters/database"
	"github.com/ahmedsaleh747/go-creative-utils/pkg/config"
	"github.com/ahmedsaleh747/go-creative-utils/pkg/gridapi"
	"github.com/ahmedsaleh747/go-creative-utils/pkg/gridview"
	"github.com/ahmedsaleh747/go-creative-utils/pkg/logger"
	"github.com/ahmedsaleh747/go-creative-utils/pkg/modelregistry"
	"github.com/ahmedsaleh747/go-creative-utils/pkg/security"
	"github.com/ahmedsaleh747/go-creative-utils/pkg/tableview"
	"github.com/ahmedsaleh747/go-creative-utils/pkg/testmodels"
)

func main() {
	cfg, err := config.LoadFromFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	fmt.Println("Grid test server starting")
	logger.Init(cfg.Log.Dev)
	defer logger.Sync()
	logger.Info("Starting application with %s configuration", cfg.Source)

	ctx := context.Background()

	// Init Models
	registry := modelregistry.NewModelRegistry()
	if err := testmodels.RegisterTestModels(registry); err != nil {
		logger.Error("Failed to register models: %v", err)
		os.Exit(1)
	}

	// Initialize database
	handler, db, err := initBackend(ctx, cfg, registry)
	if err != nil {
		logger.Error("Failed to initialize database: %+v", err)
		os.Exit(1)
	}
	if cfg.Database.Seed {
		if err := testmodels.Seed(ctx, db, time.Now()); err != nil {
			logger.Error("Failed to seed database: %v", err)
			os.Exit(1)
		}
	}
	if err := handler.RegisterAction("player", "retire", retirePlayer); err != nil {
		logger.Error("Failed to register action: %v", err)
		os.Exit(1)
	}

	tokens := security.NewStaticTokens(cfg.TokenTable())
	if cfg.Source != "" {
		err := config.Watch(cfg.Source, func(next *config.Config, err error) {
			if err != nil {
				logger.Warn("Ignoring config change: %v", err)
				return
			}
			tokens.Replace(next.TokenTable())
			logger.Info("Reloaded %d auth tokens", len(next.Auth.Tokens))
		})
		if err != nil {
			logger.Warn("Config file is not watched: %v", err)
		}
	}

	loc, _ := cfg.Location()
	view := gridview.New(
		gridview.WithAPIBaseURL(cfg.Server.PublicURL),
		gridview.WithLoginPath(cfg.Grid.LoginPath),
		gridview.WithPageSize(cfg.Grid.PageSize),
		gridview.WithRenderer(tableview.Renderer{Location: loc}),
	)

	// Create router
	r := mux.NewRouter()
	gridapi.SetupMuxRoutes(r, handler, security.NewAuthMiddleware(tokens.Authenticate))
	gridview.SetupMuxRoutes(r, view)
	r.HandleFunc(cfg.Grid.LoginPath, loginPage(tokens)).Methods("GET", "POST")

	// Start server
	logger.Info("Starting server on %s", cfg.Server.Address)
	if err := http.ListenAndServe(cfg.Server.Address, r); err != nil {
		logger.Error("Server failed to start: %v", err)
		os.Exit(1)
	}
}

func initBackend(ctx context.Context, cfg *config.Config, registry *modelregistry.DefaultModelRegistry) (*gridapi.Handler, common.Database, error) {
	if cfg.Database.Driver == "bun" {
		sqldb, err := sql.Open(sqliteshim.ShimName, cfg.Database.DSN)
		if err != nil {
			return nil, nil, err
		}
		db := bun.NewDB(sqldb, sqlitedialect.New())
		if err := testmodels.MigrateBun(ctx, db); err != nil {
			return nil, nil, err
		}
		return gridapi.NewHandlerWithBun(db, registry), database.NewBunAdapter(db), nil
	}

	level := gormlog.Warn
	if cfg.Log.Dev {
		level = gormlog.Info
	}
	newLogger := gormlog.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		gormlog.Config{
			SlowThreshold:             time.Second, // Slow SQL threshold
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true, // Don't include params in the SQL log
			Colorful:                  cfg.Log.Dev,
		},
	)

	db, err := gorm.Open(sqlite.Open(cfg.Database.DSN), &gorm.Config{Logger: newLogger, FullSaveAssociations: false})
	if err != nil {
		return nil, nil, err
	}

	// Auto migrate schemas
	if err := testmodels.MigrateGORM(db); err != nil {
		return nil, nil, err
	}
	return gridapi.NewHandlerWithGORM(db, registry), database.NewGormAdapter(db), nil
}

func retirePlayer(ctx context.Context, db common.Database, id string) (*common.Action, error) {
	_, err := db.NewUpdate().Table("players").SetMap(map[string]interface{}{"active": false}).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return nil, err
	}
	return &common.Action{Action: common.ActionToast, Message: "Player retired"}, nil
}

const loginForm = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Login</title></head>
<body>
<form method="post">
<input type="hidden" name="redirect" value="%s">
<input type="password" name="token" placeholder="Token">
<button type="submit">Login</button>
</form>
%s
</body></html>`

// loginPage stores a known bearer token in the session cookie read by the grid pages.
func loginPage(tokens *security.StaticTokens) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		redirect := r.FormValue("redirect")
		if !strings.HasPrefix(redirect, "/") || strings.HasPrefix(redirect, "//") {
			redirect = "/model/player"
		}

		message := ""
		if r.Method == http.MethodPost {
			token := strings.TrimSpace(r.PostFormValue("token"))
			probe := &http.Request{Header: http.Header{"Authorization": {"Bearer " + token}}, URL: &url.URL{}}
			if _, _, err := tokens.Authenticate(probe); err == nil {
				http.SetCookie(w, &http.Cookie{Name: gridview.TokenCookie, Value: token, Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode})
				http.Redirect(w, r, redirect, http.StatusSeeOther)
				return
			}
			logger.Warn("Rejected login attempt")
			message = "<p>Unknown token</p>"
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, loginForm, html.EscapeString(redirect), message)
	}
}
