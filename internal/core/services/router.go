package services

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
	"github.com/custodia-labs/cloudpoll/internal/core/ports/driven"
	"github.com/custodia-labs/cloudpoll/internal/logger"
)

// anyAccountType matches every account type in a route.
const anyAccountType domain.AccountType = "*"

// routeKey is one row of the decision table.
type routeKey struct {
	action      domain.Action
	sourceType  domain.SourceType
	accountType domain.AccountType
}

// ActionRouter dispatches action records to handlers through a fixed
// decision table keyed by action, source type and account type.
type ActionRouter struct {
	routes   map[routeKey]driven.ActionHandler
	fallback driven.ActionHandler
}

// RouterHandlers are the handlers the router dispatches to.
type RouterHandlers struct {
	// Download handles download records per account type.
	// A handler under the empty key serves types with no entry of their own.
	Download map[domain.AccountType]driven.ActionHandler

	// MakeDirectory creates folders.
	MakeDirectory driven.ActionHandler

	// DeleteFile removes a single file.
	DeleteFile driven.ActionHandler

	// DeleteFolder removes a folder and everything below it.
	DeleteFolder driven.ActionHandler

	// Default receives everything else. Nil logs and drops.
	Default driven.ActionHandler
}

// NewActionRouter builds the decision table.
func NewActionRouter(h RouterHandlers) *ActionRouter {
	r := &ActionRouter{
		routes:   make(map[routeKey]driven.ActionHandler),
		fallback: h.Default,
	}
	if r.fallback == nil {
		r.fallback = driven.ActionHandlerFunc(dropRecord)
	}

	for accountType, handler := range h.Download {
		if handler == nil {
			continue
		}
		if accountType == "" {
			accountType = anyAccountType
		}
		r.routes[routeKey{domain.ActionDownload, domain.SourceTypeFile, accountType}] = handler
	}
	if h.MakeDirectory != nil {
		r.routes[routeKey{domain.ActionMakeDirectory, domain.SourceTypeFolder, anyAccountType}] = h.MakeDirectory
	}
	if h.DeleteFile != nil {
		r.routes[routeKey{domain.ActionDelete, domain.SourceTypeFile, anyAccountType}] = h.DeleteFile
	}
	if h.DeleteFolder != nil {
		r.routes[routeKey{domain.ActionDelete, domain.SourceTypeFolder, anyAccountType}] = h.DeleteFolder
	}
	return r
}

// Route returns the handler for a record.
func (r *ActionRouter) Route(rec domain.ActionRecord) driven.ActionHandler {
	if h, ok := r.routes[routeKey{rec.Action, rec.SourceType, rec.AccountType}]; ok {
		return h
	}
	if h, ok := r.routes[routeKey{rec.Action, rec.SourceType, anyAccountType}]; ok {
		return h
	}
	return r.fallback
}

// Dispatch hands a record to its handler. Handler errors and panics are
// returned wrapped in domain.ErrHandler; they never stop the caller's batch.
func (r *ActionRouter) Dispatch(ctx context.Context, rec domain.ActionRecord) (err error) {
	handler := r.Route(rec)

	defer func() {
		if p := recover(); p != nil {
			logger.Debug("handler panic stack: %s", debug.Stack())
			err = domain.NewPollError(domain.ErrHandler, rec.AccountID, rec.SourceID,
				"handler."+string(rec.Action), fmt.Errorf("panic: %v", p))
		}
		if err != nil {
			logger.Errorw("handler failed",
				"account_id", rec.AccountID,
				"source_id", rec.SourceID,
				"action", string(rec.Action),
				"path", rec.SourcePath,
				"class", "handler",
				"error", err)
		}
	}()

	if herr := handler.Handle(ctx, rec); herr != nil {
		return domain.NewPollError(domain.ErrHandler, rec.AccountID, rec.SourceID,
			"handler."+string(rec.Action), herr)
	}
	return nil
}

// dropRecord is the default route.
func dropRecord(_ context.Context, rec domain.ActionRecord) error {
	logger.Warnw("no handler for record, dropping",
		"account_id", rec.AccountID,
		"source_id", rec.SourceID,
		"action", string(rec.Action),
		"source_type", string(rec.SourceType),
		"account_type", string(rec.AccountType))
	return nil
}
