package model

import (
	"time"
)

// Member is a health-plan participant as stored by the member store.
// DatabrokerInfo, Consent and ProviderDetails are passed through verbatim.
type Member struct {
	MemberID         string     `json:"member_id" db:"member_id"`
	ProviderID       string     `json:"provider_id" db:"provider_id"`
	Active           bool       `json:"active" db:"active"`
	FirstName        string     `json:"first_name" db:"first_name"`
	LastName         string     `json:"last_name" db:"last_name"`
	CreateTime       time.Time  `json:"create_time" db:"create_time"`
	UpdateTime       time.Time  `json:"update_time" db:"update_time"`
	TryvUserID       string     `json:"tryv_userid" db:"tryv_userid"`
	Address          string     `json:"address" db:"address"`
	FallbackTimeZone string     `json:"fallback_time_zone" db:"fallback_time_zone"`
	Email            string     `json:"email" db:"email"`
	Synth            bool       `json:"synth" db:"synth"`
	PhoneNumber      string     `json:"phone_number" db:"phone_number"`
	Height           string     `json:"height" db:"height"`
	Gender           string     `json:"gender" db:"gender"`
	DateOfBirth      *time.Time `json:"date_of_birth" db:"date_of_birth"`
	DatabrokerInfo   JSONMap    `json:"databroker_info" db:"databroker_info"`
	Consent          JSONArray  `json:"consent" db:"consent"`
	ProviderDetails  JSONMap    `json:"provider_details" db:"provider_details"`
}

// MemberQuery holds the lookup keys accepted by /v1/member/get.
// Exactly one of them must be set.
type MemberQuery struct {
	ID          string `form:"id"`
	Email       string `form:"email" binding:"omitempty,email"`
	PhoneNumber string `form:"phone_number"`
	ProviderID  string `form:"provider_id"`
}

// LookupKey identifies which field of a MemberQuery is populated.
type LookupKey string

const (
	LookupByID       LookupKey = "id"
	LookupByEmail    LookupKey = "email"
	LookupByPhone    LookupKey = "phone_number"
	LookupByProvider LookupKey = "provider_id"
)

// SetKeys returns the lookup keys that carry a value, in declaration order.
func (q MemberQuery) SetKeys() []LookupKey {
	var keys []LookupKey
	if q.ID != "" {
		keys = append(keys, LookupByID)
	}
	if q.Email != "" {
		keys = append(keys, LookupByEmail)
	}
	if q.PhoneNumber != "" {
		keys = append(keys, LookupByPhone)
	}
	if q.ProviderID != "" {
		keys = append(keys, LookupByProvider)
	}
	return keys
}
