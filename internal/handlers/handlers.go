package handlers

import (
	"github.com/kinship-app/backend/internal/auth"
	"github.com/kinship-app/backend/internal/calls"
	"github.com/kinship-app/backend/internal/feed"
	"github.com/kinship-app/backend/internal/notify"
	"github.com/kinship-app/backend/internal/storage"
	"github.com/kinship-app/backend/internal/tracking"
)

// Handlers aggregates the HTTP endpoints and their service dependencies.
type Handlers struct {
	auth     *auth.Service
	feed     *feed.Service
	notify   *notify.Service
	tracking *tracking.Service
	calls    *calls.Service
	media    storage.MediaStore // nil disables media upload
}

// New wires every endpoint group. media may be nil in environments without
// object storage.
func New(
	authService *auth.Service,
	feedService *feed.Service,
	notifyService *notify.Service,
	trackingService *tracking.Service,
	callService *calls.Service,
	media storage.MediaStore,
) *Handlers {
	return &Handlers{
		auth:     authService,
		feed:     feedService,
		notify:   notifyService,
		tracking: trackingService,
		calls:    callService,
		media:    media,
	}
}
