package handler

import (
	"github.com/gin-gonic/gin"

	"mindscribe-go/internal/service"
)

// TherapistHandler 负责治疗师视角的病人与告警接口，路由需挂在 TherapistAuthMiddleware 之后。
type TherapistHandler struct {
	rosterService   service.RosterService
	alertService    service.AlertService
	insightsService service.InsightsService
}

// NewTherapistHandler 创建一个新的 TherapistHandler 实例。
func NewTherapistHandler(rosterService service.RosterService, alertService service.AlertService, insightsService service.InsightsService) *TherapistHandler {
	return &TherapistHandler{
		rosterService:   rosterService,
		alertService:    alertService,
		insightsService: insightsService,
	}
}

// Patients 返回指定给当前治疗师的病人。
func (h *TherapistHandler) Patients(c *gin.Context) {
	sc, ok := currentSession(c)
	if !ok {
		return
	}
	patients, err := h.rosterService.PatientsOf(c.Request.Context(), sc.UID())
	writeList(c, "Patients", patients, err)
}

// PatientJournals 返回某个病人的日记。
func (h *TherapistHandler) PatientJournals(c *gin.Context) {
	sc, ok := currentSession(c)
	if !ok {
		return
	}
	entries, err := h.rosterService.PatientJournals(c.Request.Context(), sc.User, c.Param("uid"), limitParam(c))
	writeList(c, "PatientJournals", entries, err)
}

// PatientDashboard 返回某个病人的仪表盘统计。
func (h *TherapistHandler) PatientDashboard(c *gin.Context) {
	sc, ok := currentSession(c)
	if !ok {
		return
	}
	patient, err := h.rosterService.Patient(c.Request.Context(), sc.User, c.Param("uid"))
	if err != nil {
		writeError(c, "PatientDashboard", err)
		return
	}
	writeDashboard(c, h.insightsService, patient.UID)
}

// Alerts 返回当前治疗师名下所有未解决的告警，从新到旧。
func (h *TherapistHandler) Alerts(c *gin.Context) {
	sc, ok := currentSession(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	patients, err := h.rosterService.PatientsOf(ctx, sc.UID())
	if err != nil {
		writeList[service.AlertItem](c, "Alerts", nil, err)
		return
	}
	items, err := h.rosterService.ActiveAlerts(ctx, patients)
	writeList(c, "Alerts", items, err)
}

// Acknowledge 确认一条告警。
func (h *TherapistHandler) Acknowledge(c *gin.Context) {
	sc, ok := currentSession(c)
	if !ok {
		return
	}
	entry, err := h.alertService.Acknowledge(c.Request.Context(), sc.User, c.Param("id"))
	if err != nil {
		writeError(c, "AcknowledgeAlert", err)
		return
	}
	success(c, "Alert acknowledged", entry)
}

// Resolve 解决一条已确认的告警。
func (h *TherapistHandler) Resolve(c *gin.Context) {
	sc, ok := currentSession(c)
	if !ok {
		return
	}
	entry, err := h.alertService.Resolve(c.Request.Context(), sc.User, c.Param("id"))
	if err != nil {
		writeError(c, "ResolveAlert", err)
		return
	}
	success(c, "Alert resolved", entry)
}
