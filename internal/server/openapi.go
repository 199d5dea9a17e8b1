package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/playperu/breachhunt/internal/engine"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

type operation struct {
	method, path, summary, description string
	req                                any
	resp                               any
	errors                             []int
	contentType                        string
}

var operations = []operation{
	{http.MethodGet, "/healthz", "Health check", "Returns the status of the store, the change feed and the engine.",
		nil, HealthResponse{}, []int{http.StatusServiceUnavailable}, ""},

	{http.MethodPost, "/api/login/team", "Team login", "Exchange a team name and access code for a bearer token.",
		TeamLoginRequest{}, TeamLoginResponse{}, []int{http.StatusBadRequest, http.StatusUnauthorized}, ""},
	{http.MethodPost, "/api/login/staff", "Staff login", "Exchange an admin or volunteer password for a bearer token.",
		StaffLoginRequest{}, StaffLoginResponse{}, []int{http.StatusBadRequest, http.StatusUnauthorized}, ""},
	{http.MethodPost, "/api/logout", "Logout", "Revokes the bearer token.",
		nil, nil, []int{http.StatusUnauthorized}, ""},

	{http.MethodGet, "/api/state", "Viewer state", "Derived state for the caller's role. Volunteers may pass ?node= to filter teams.",
		nil, engine.Snapshot{}, []int{http.StatusUnauthorized, http.StatusServiceUnavailable}, ""},
	{http.MethodGet, "/api/events", "Viewer state stream", "Server-Sent Events stream of state snapshots. Pass token as query parameter.",
		nil, nil, []int{http.StatusUnauthorized}, "text/event-stream"},
	{http.MethodGet, "/ws/state", "Viewer state WebSocket", "WebSocket stream of state snapshots. Pass token as query parameter.",
		nil, nil, []int{http.StatusUnauthorized}, "websocket"},
	{http.MethodGet, "/api/spectator/state", "Scoreboard", "Public leaderboard state.",
		nil, engine.Snapshot{}, []int{http.StatusServiceUnavailable}, ""},
	{http.MethodGet, "/api/spectator/events", "Scoreboard stream", "Server-Sent Events stream of the public leaderboard.",
		nil, nil, nil, "text/event-stream"},

	{http.MethodPost, "/api/game/answer", "Submit answer", "Checks an answer for the team's current node. Requires a team token.",
		AnswerRequest{}, AnswerResponse{}, []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusConflict, http.StatusServiceUnavailable}, ""},
	{http.MethodPost, "/api/game/heartbeat", "Heartbeat", "Marks the team as online.",
		nil, nil, []int{http.StatusUnauthorized, http.StatusServiceUnavailable}, ""},

	{http.MethodPost, "/api/volunteer/advance", "Manual advance", "Advances a team that solved its node on site and announces it.",
		AdvanceRequest{}, OutcomeResponse{}, []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict}, ""},
	{http.MethodPost, "/api/volunteer/call", "Call for assistance", "Broadcasts a help request for a node.",
		CallRequest{}, nil, []int{http.StatusBadRequest, http.StatusForbidden, http.StatusBadGateway}, ""},
	{http.MethodPost, "/api/alerts", "Broadcast alert", "Shows a message on every connected screen for a few seconds.",
		AlertRequest{}, nil, []int{http.StatusBadRequest, http.StatusForbidden, http.StatusBadGateway}, ""},

	{http.MethodPost, "/api/admin/clock/start", "Start clock", "Starts the countdown for the game and every team.",
		StartClockRequest{}, OutcomeResponse{}, []int{http.StatusForbidden, http.StatusServiceUnavailable}, ""},
	{http.MethodPost, "/api/admin/clock/stop", "Stop clock", "Moves the game back to standby.",
		nil, OutcomeResponse{}, []int{http.StatusForbidden, http.StatusServiceUnavailable}, ""},
	{http.MethodPost, "/api/admin/clock/pause", "Pause clock", "Freezes every running clock. Refused when nothing is running.",
		nil, OutcomeResponse{}, []int{http.StatusForbidden, http.StatusServiceUnavailable}, ""},
	{http.MethodPost, "/api/admin/clock/resume", "Resume clock", "Shifts every paused clock by its pause length.",
		nil, OutcomeResponse{}, []int{http.StatusForbidden, http.StatusServiceUnavailable}, ""},
	{http.MethodPost, "/api/admin/clock/adjust", "Adjust time", "Adds or removes minutes from the countdown length.",
		AdjustRequest{}, AdjustResponse{}, []int{http.StatusBadRequest, http.StatusForbidden, http.StatusServiceUnavailable}, ""},
	{http.MethodPost, "/api/admin/teams/{teamID}/promote", "Promote team", "Advances a team without an answer.",
		nil, OutcomeResponse{}, []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict}, ""},
	{http.MethodPost, "/api/admin/teams/{teamID}/demote", "Demote team", "Steps a team back one node and one award.",
		nil, OutcomeResponse{}, []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict}, ""},
	{http.MethodPost, "/api/admin/reset", "Request reset", "Returns a short-lived token that confirms a global reset.",
		nil, ResetResponse{}, []int{http.StatusForbidden}, ""},
	{http.MethodPost, "/api/admin/reset/confirm", "Confirm reset", "Sends every team back to the first node.",
		ResetConfirmRequest{}, OutcomeResponse{}, []int{http.StatusForbidden, http.StatusConflict, http.StatusServiceUnavailable}, ""},
	{http.MethodPost, "/api/admin/resync", "Resync", "Re-reads all state from the store.",
		nil, nil, []int{http.StatusForbidden, http.StatusServiceUnavailable}, ""},
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Breach Hunt API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Live game state, clock control and broadcasts for the Breach Hunt treasure hunt.")

	for _, op := range operations {
		oc, err := r.NewOperationContext(op.method, op.path)
		if err != nil {
			continue
		}
		oc.SetSummary(op.summary)
		oc.SetDescription(op.description)
		if op.req != nil {
			oc.AddReqStructure(op.req)
		}
		switch {
		case op.contentType == "websocket":
			oc.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusSwitchingProtocols),
				openapi.WithContentType("text/plain"))
		case op.contentType != "":
			oc.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK),
				openapi.WithContentType(op.contentType))
		case op.resp != nil:
			oc.AddRespStructure(op.resp, openapi.WithHTTPStatus(http.StatusOK))
		default:
			oc.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusNoContent))
		}
		for _, status := range op.errors {
			oc.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(status))
		}
		_ = r.AddOperation(oc)
	}

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
