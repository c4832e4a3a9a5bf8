package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/scheduled-publisher/internal/schedule"
	"github.com/JakeFAU/scheduled-publisher/internal/scheduler"
)

// Operator actions accepted by POST /action.
const (
	ActionPublishNow   = "publish-now"
	ActionReschedule   = "reschedule"
	ActionPauseWorker  = "pause-worker"
	ActionResumeWorker = "resume-worker"
	ActionSwitchDB     = "switch-db"
	ActionClearCache   = "clear-cache"
)

type dataResponse struct {
	Schedule []schedule.ScheduledItem `json:"schedule"`
	History  []schedule.ScheduledItem `json:"history"`
	Status   scheduler.StatusView     `json:"status"`
}

type actionRequest struct {
	Action  string   `json:"action"`
	ItemIDs []string `json:"itemIds"`
	Time    string   `json:"time"`
}

// data handles GET /data. It returns 503 when the active backend cannot be read.
func (s *Server) data(w http.ResponseWriter, r *http.Request) {
	doc, err := s.cmds.LoadData(r.Context())
	if err != nil {
		s.logger.Error("load data failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	doc.Normalize()
	writeJSON(w, http.StatusOK, dataResponse{
		Schedule: doc.Schedule,
		History:  doc.RecentlyPublished,
		Status:   s.cmds.Status(),
	})
}

// action handles POST /action. Successful commands return 200, everything
// else 400, both with a {success, message} body.
func (s *Server) action(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, scheduler.ActionResult{Message: "invalid JSON"})
		return
	}

	var res scheduler.ActionResult
	switch req.Action {
	case ActionPublishNow:
		res = s.cmds.PublishNow(r.Context(), req.ItemIDs)
	case ActionReschedule:
		res = s.cmds.Reschedule(r.Context(), req.ItemIDs, req.Time)
	case ActionPauseWorker:
		res = s.cmds.Pause()
	case ActionResumeWorker:
		res = s.cmds.Resume()
	case ActionSwitchDB:
		res = s.cmds.SwitchDatabase(r.Context())
	case ActionClearCache:
		res = s.cmds.ClearMissedCache()
	default:
		res = scheduler.ActionResult{Message: fmt.Sprintf("unknown action %q", req.Action)}
	}

	status := http.StatusOK
	if !res.Success {
		status = http.StatusBadRequest
		s.logger.Warn("action rejected",
			zap.String("request_id", requestID(r.Context())),
			zap.String("action", req.Action),
			zap.String("message", res.Message),
		)
	}
	writeJSON(w, status, res)
}
