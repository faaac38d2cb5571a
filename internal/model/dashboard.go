package model

// Dashboard panels. The response of /member_dashboards always carries exactly these keys.
const (
	PanelHeart = "Heart"
	PanelBody  = "Body"
	PanelMind  = "Mind"
)

// Panels lists the dashboard panels in display order.
var Panels = []string{PanelHeart, PanelBody, PanelMind}

type DashboardRequest struct {
	MemberID  string   `json:"member_id" binding:"required"`
	StartTime *string  `json:"start_time"`
	EndTime   *string  `json:"end_time"`
	Vitals    []string `json:"vitals"`
}

// DashboardLinks maps a panel name to its embeddable iframe markup.
type DashboardLinks map[string]string
