package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

type Provider struct {
	ProviderID   string    `json:"provider_id" db:"provider_id"`
	ProviderName string    `json:"provider_name" db:"provider_name"`
	CreateTime   time.Time `json:"create_time" db:"create_time"`
}

// ProviderName is the response of /v1/member/get when looked up by provider_id.
type ProviderName struct {
	ProviderID   string `json:"provider_id" db:"provider_id"`
	ProviderName string `json:"provider_name" db:"provider_name"`
}

// ProviderConfigItem names a provider setting. The set is closed; see providerConfigItems.
type ProviderConfigItem string

const (
	ConfigAskAlyfEnabled        ProviderConfigItem = "ask_alyf_enabled"
	ConfigAskAlyfModel          ProviderConfigItem = "ask_alyf_model"
	ConfigDashboardDefaultRange ProviderConfigItem = "dashboard_default_range"
	ConfigDashboardVitals       ProviderConfigItem = "dashboard_vitals"
	ConfigFallbackTimeZone      ProviderConfigItem = "fallback_time_zone"
	ConfigNotificationEmail     ProviderConfigItem = "notification_email"
	ConfigDataSyncInterval      ProviderConfigItem = "data_sync_interval"
	ConfigMemberConsentRequired ProviderConfigItem = "member_consent_required"
	ConfigSynthMembersEnabled   ProviderConfigItem = "synth_members_enabled"
	ConfigWebhookURL            ProviderConfigItem = "webhook_url"
)

var providerConfigItems = map[ProviderConfigItem]struct{}{
	ConfigAskAlyfEnabled:        {},
	ConfigAskAlyfModel:          {},
	ConfigDashboardDefaultRange: {},
	ConfigDashboardVitals:       {},
	ConfigFallbackTimeZone:      {},
	ConfigNotificationEmail:     {},
	ConfigDataSyncInterval:      {},
	ConfigMemberConsentRequired: {},
	ConfigSynthMembersEnabled:   {},
	ConfigWebhookURL:            {},
}

func (i ProviderConfigItem) Valid() bool {
	_, ok := providerConfigItems[i]
	return ok
}

// ProviderConfigItems returns the recognised option names, sorted.
func ProviderConfigItems() []ProviderConfigItem {
	items := make([]ProviderConfigItem, 0, len(providerConfigItems))
	for item := range providerConfigItems {
		items = append(items, item)
	}
	sort.Slice(items, func(a, b int) bool { return items[a] < items[b] })
	return items
}

// ProviderConfigUpdate is a validated partial update of provider settings.
type ProviderConfigUpdate map[ProviderConfigItem]interface{}

// ParseProviderConfigUpdate validates every key of raw. Unknown keys reject the
// whole update; the error lists them in sorted order.
func ParseProviderConfigUpdate(raw map[string]interface{}) (ProviderConfigUpdate, error) {
	var unknown []string
	update := make(ProviderConfigUpdate, len(raw))
	for key, value := range raw {
		item := ProviderConfigItem(key)
		if !item.Valid() {
			unknown = append(unknown, key)
			continue
		}
		update[item] = value
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown config options: %s", strings.Join(unknown, ", "))
	}
	return update, nil
}

// ProviderConfigEntry is one stored provider setting.
type ProviderConfigEntry struct {
	ProviderID string             `db:"provider_id"`
	Item       ProviderConfigItem `db:"item"`
	Value      json.RawMessage    `db:"value"`
	UpdateTime time.Time          `db:"update_time"`
}

// ProviderConfigUpdated is recorded in the config update transaction.
type ProviderConfigUpdated struct {
	ProviderID string               `json:"provider_id"`
	Items      []ProviderConfigItem `json:"items"`
	UpdatedAt  time.Time            `json:"updated_at"`
}
