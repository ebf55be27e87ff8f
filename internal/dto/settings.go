package dto

// UpdateCirculationSettingsRequest holds operator knobs for the auto-overdue
// scheduler. All fields optional; absent fields are left unchanged.
type UpdateCirculationSettingsRequest struct {
	AutoOverdueEnabled *bool    `json:"autoOverdueEnabled,omitempty"`
	AutoOverdueTime    *string  `json:"autoOverdueTime,omitempty"`
	AutoOverdueDays    []string `json:"autoOverdueDays,omitempty"`
}
