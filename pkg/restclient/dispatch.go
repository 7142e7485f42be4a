package restclient

import (
	"context"
	"sync"

	"github.com/ahmedsaleh747/go-creative-utils/pkg/common"
	"github.com/ahmedsaleh747/go-creative-utils/pkg/logger"
)

// LogNotifier writes notifications to the log.
type LogNotifier struct{}

func (LogNotifier) Notify(kind, title, message string) {
	if kind == NotifyError {
		logger.Error("%s %s", title, message)
		return
	}
	logger.Info("[%s] %s %s", kind, title, message)
}

// DefaultDispatcher handles Toast through the notifier and reports Refresh and
// Redirect to the optional hooks. Dialog actions are passed to OnDialog.
type DefaultDispatcher struct {
	Notifier   Notifier
	OnRefresh  func(ctx context.Context)
	OnRedirect func(ctx context.Context, url string)
	OnDialog   func(ctx context.Context, action common.Action)
}

func (d *DefaultDispatcher) Dispatch(ctx context.Context, action common.Action) bool {
	logger.Debug("Dispatching action %s", action.Action)
	switch action.Action {
	case common.ActionRefresh:
		if d.OnRefresh != nil {
			d.OnRefresh(ctx)
		}
	case common.ActionRedirect:
		if d.OnRedirect != nil {
			d.OnRedirect(ctx, action.URL)
		}
	case common.ActionDialog:
		if d.OnDialog != nil {
			d.OnDialog(ctx, action)
		}
	case common.ActionToast:
		if d.Notifier != nil {
			d.Notifier.Notify(NotifySuccess, "Success!", action.Message)
		}
	default:
		logger.Warn("Ignoring unknown action %q", action.Action)
		return false
	}
	return action.Stops()
}

// TokenGate is an AuthGate over an in-memory credential.
type TokenGate struct {
	mu       sync.Mutex
	token    string
	OnExpire func()
}

func NewTokenGate(token string) *TokenGate {
	return &TokenGate{token: token}
}

func (g *TokenGate) Token() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.token, g.token != ""
}

func (g *TokenGate) SetToken(token string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.token = token
}

func (g *TokenGate) Expire() {
	g.mu.Lock()
	g.token = ""
	hook := g.OnExpire
	g.mu.Unlock()

	logger.Info("Credential expired, login required")
	if hook != nil {
		hook()
	}
}
