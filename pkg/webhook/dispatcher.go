package webhook

import (
	"strings"

	"github.com/brightpulse/bitrix-warehouse/pkg/bitrix"
)

// Route describes where a webhook event goes.
type Route struct {
	EntityType string
	Delete     bool
}

// eventRoutes covers the twelve CRM events the connector registers.
var eventRoutes = map[string]Route{
	"ONCRMDEALADD":       {EntityType: bitrix.EntityDeal},
	"ONCRMDEALUPDATE":    {EntityType: bitrix.EntityDeal},
	"ONCRMDEALDELETE":    {EntityType: bitrix.EntityDeal, Delete: true},
	"ONCRMCONTACTADD":    {EntityType: bitrix.EntityContact},
	"ONCRMCONTACTUPDATE": {EntityType: bitrix.EntityContact},
	"ONCRMCONTACTDELETE": {EntityType: bitrix.EntityContact, Delete: true},
	"ONCRMLEADADD":       {EntityType: bitrix.EntityLead},
	"ONCRMLEADUPDATE":    {EntityType: bitrix.EntityLead},
	"ONCRMLEADDELETE":    {EntityType: bitrix.EntityLead, Delete: true},
	"ONCRMCOMPANYADD":    {EntityType: bitrix.EntityCompany},
	"ONCRMCOMPANYUPDATE": {EntityType: bitrix.EntityCompany},
	"ONCRMCOMPANYDELETE": {EntityType: bitrix.EntityCompany, Delete: true},
}

// RouteEvent maps an event name to its sync route. The second return is
// false for events the connector does not handle.
func RouteEvent(event string) (Route, bool) {
	route, ok := eventRoutes[strings.ToUpper(event)]
	return route, ok
}
