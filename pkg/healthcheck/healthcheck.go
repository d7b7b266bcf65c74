/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package healthcheck

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/meridianfed/meridian/internal/pkg/log"
	"github.com/meridianfed/meridian/pkg/httpserver"
	"github.com/meridianfed/meridian/pkg/lifecycle"
	"github.com/meridianfed/meridian/pkg/restapi/common"
)

var logger = log.New("healthcheck")

const (
	healthCheckEndpoint = "/healthcheck"

	success      = "success"
	notConnected = "not connected"
	notStarted   = "not started"
	stopped      = "stopped"
	unknown      = "unknown error"
)

// Handler implements a health check HTTP handler.
type Handler struct {
	pubSub          pubSub
	db              db
	federation      federationService
	maintenanceMode bool
}

type pubSub interface {
	IsConnected() bool
}

type db interface {
	Ping() error
}

type federationService interface {
	State() lifecycle.State
}

// NewHandler returns a new health check handler. Components that are not
// applicable to the deployment may be nil, in which case they are excluded
// from the check.
func NewHandler(pubSub pubSub, db db, federation federationService, maintenanceMode bool) *Handler {
	return &Handler{
		pubSub:          pubSub,
		db:              db,
		federation:      federation,
		maintenanceMode: maintenanceMode,
	}
}

// Method returns the HTTP method, which is always GET.
func (h *Handler) Method() string {
	return http.MethodGet
}

// Path returns the base path of the target URL for this handler.
func (h *Handler) Path() string {
	return healthCheckEndpoint
}

// Handler returns the handler that should be invoked when an HTTP GET is requested to the target endpoint.
// This handler must be registered with an HTTP server.
func (h *Handler) Handler() common.HTTPRequestHandler {
	return h.checkHealth
}

type response struct {
	MQStatus         string    `json:"mqStatus,omitempty"`
	DBStatus         string    `json:"dbStatus,omitempty"`
	FederationStatus string    `json:"federationStatus,omitempty"`
	Status           string    `json:"status,omitempty"`
	CurrentTime      time.Time `json:"currentTime,omitempty"`
	Version          string    `json:"version,omitempty"`
}

func (h *Handler) checkHealth(rw http.ResponseWriter, _ *http.Request) {
	returnStatusServiceUnavailable := false

	unavailable, mqStatus := h.mqHealthCheck()
	if unavailable {
		returnStatusServiceUnavailable = true
	}

	unavailable, dbStatus := h.dbHealthCheck()
	if unavailable {
		returnStatusServiceUnavailable = true
	}

	unavailable, federationStatus := h.federationHealthCheck()
	if unavailable {
		returnStatusServiceUnavailable = true
	}

	status := http.StatusOK

	if returnStatusServiceUnavailable {
		status = http.StatusServiceUnavailable
	}

	hc := &response{
		MQStatus:         mqStatus,
		DBStatus:         dbStatus,
		FederationStatus: federationStatus,
		CurrentTime:      time.Now(),
		Status:           "OK",
		Version:          httpserver.BuildVersion,
	}

	if h.maintenanceMode {
		// The server was started in maintenance mode, so return 200 from the health
		// check even if a component check is failing in order to give an admin the
		// opportunity to fix the system configuration.
		status = http.StatusOK
		hc.Status = "Maintenance"
	}

	hcBytes, err := json.Marshal(hc)
	if err != nil {
		logger.Error("Healthcheck marshal error", logfields.WithError(err))

		return
	}

	logger.Debug("Health check returning response",
		logfields.WithHTTPStatus(status), logfields.WithResponse(hcBytes))

	rw.WriteHeader(status)

	_, err = rw.Write(hcBytes)
	if err != nil {
		logger.Error("Healthcheck response failure", logfields.WithError(err))
	}
}

func (h *Handler) mqHealthCheck() (bool, string) {
	if h.pubSub == nil {
		return false, ""
	}

	if h.pubSub.IsConnected() {
		return false, success
	}

	return true, notConnected
}

func (h *Handler) dbHealthCheck() (bool, string) {
	if h.db == nil {
		return false, ""
	}

	err := h.db.Ping()
	if err == nil {
		return false, success
	}

	return true, toStatus(err)
}

func (h *Handler) federationHealthCheck() (bool, string) {
	if h.federation == nil {
		return false, ""
	}

	switch h.federation.State() {
	case lifecycle.StateStarted:
		return false, success
	case lifecycle.StateStopped:
		return true, stopped
	default:
		return true, notStarted
	}
}

func toStatus(err error) string {
	if err.Error() != "" {
		return err.Error()
	}

	return unknown
}
