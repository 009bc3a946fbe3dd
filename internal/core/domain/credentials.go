package domain

// CredentialSlotStatus is the observable state of one API key slot
type CredentialSlotStatus struct {
	// Index is 1-based, matching the configured key order
	Index             int  `json:"index"`
	Available         bool `json:"available"`
	RecoveryInSeconds int  `json:"recovery_in_seconds"`
}

// CredentialPoolStatus aggregates all slots
type CredentialPoolStatus struct {
	Provider  string                 `json:"provider"`
	Mock      bool                   `json:"mock"`
	Available int                    `json:"available"`
	Total     int                    `json:"total"`
	Slots     []CredentialSlotStatus `json:"slots"`
}

// NewCredentialPoolStatus computes the aggregate counts from slots.
func NewCredentialPoolStatus(provider string, slots []CredentialSlotStatus) CredentialPoolStatus {
	st := CredentialPoolStatus{
		Provider: provider,
		Mock:     len(slots) == 0,
		Total:    len(slots),
		Slots:    slots,
	}
	for _, s := range slots {
		if s.Available {
			st.Available++
		}
	}
	return st
}

// Healthy is true when at least one slot can serve calls, or the mock is active.
func (s CredentialPoolStatus) Healthy() bool {
	return s.Mock || s.Available > 0
}
