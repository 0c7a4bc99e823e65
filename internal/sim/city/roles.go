package city

import "sort"

// Action names form a closed, role-dependent enum. Decisions carry one of
// these plus a free-text details field; anything else falls back to the
// role default.
const (
	ActWork         = "work"
	ActExplore      = "explore"
	ActTrade        = "trade"
	ActPatrol       = "patrol"
	ActTeach        = "teach"
	ActHeal         = "heal"
	ActDeliver      = "deliver"
	ActDefend       = "defend"
	ActSteal        = "steal"
	ActLurk         = "lurk"
	ActStudy        = "study"
	ActRecruit      = "recruit"
	ActBlackmail    = "blackmail"
	ActDestroyAsset = "destroy_asset"
	ActMessage      = "message"
	ActReport       = "report"
	ActRest         = "rest"
	ActStartProject = "start_project"
	ActWorkProject  = "work_project"
	ActClaimHome    = "claim_home"
	ActMove         = "move"
)

// RoleCapabilities describes what a role may do and how it earns. The
// closed table replaces role dispatch by string match.
type RoleCapabilities struct {
	Actions       []string
	DefaultAction string
	EarnMin       int
	EarnMax       int

	// GraduationTarget marks roles a newborn may graduate into.
	GraduationTarget bool
}

var commonActions = []string{ActMessage, ActReport, ActRest, ActStartProject, ActWorkProject, ActClaimHome, ActMove}

var roleTable = map[Role]RoleCapabilities{
	RoleBuilder:  {Actions: append([]string{ActWork}, commonActions...), DefaultAction: ActWork, EarnMin: 50, EarnMax: 180, GraduationTarget: true},
	RoleExplorer: {Actions: append([]string{ActExplore}, commonActions...), DefaultAction: ActExplore, EarnMin: 0, EarnMax: 600, GraduationTarget: true},
	RoleMerchant: {Actions: append([]string{ActTrade}, commonActions...), DefaultAction: ActTrade, EarnMin: 40, EarnMax: 160, GraduationTarget: true},
	RolePolice:   {Actions: append([]string{ActPatrol}, commonActions...), DefaultAction: ActPatrol, EarnMin: 60, EarnMax: 150},
	RoleTeacher:  {Actions: append([]string{ActTeach}, commonActions...), DefaultAction: ActTeach, EarnMin: 40, EarnMax: 120, GraduationTarget: true},
	RoleHealer:   {Actions: append([]string{ActHeal}, commonActions...), DefaultAction: ActHeal, EarnMin: 40, EarnMax: 120, GraduationTarget: true},
	RoleMessenger: {Actions: append([]string{ActDeliver}, commonActions...), DefaultAction: ActDeliver, EarnMin: 30, EarnMax: 100, GraduationTarget: true},
	RoleLawyer:   {Actions: append([]string{ActDefend}, commonActions...), DefaultAction: ActDefend, EarnMin: 0, EarnMax: 300, GraduationTarget: true},
	RoleThief:    {Actions: append([]string{ActSteal, ActLurk}, commonActions...), DefaultAction: ActLurk, EarnMin: 0, EarnMax: 80},
	RoleNewborn:  {Actions: append([]string{ActStudy}, commonActions...), DefaultAction: ActStudy, EarnMin: 0, EarnMax: 50},
	RoleGangLeader: {Actions: append([]string{ActRecruit, ActSteal, ActLurk}, commonActions...), DefaultAction: ActLurk, EarnMin: 0, EarnMax: 80},
	RoleBlackmailer: {Actions: append([]string{ActBlackmail, ActLurk}, commonActions...), DefaultAction: ActLurk, EarnMin: 0, EarnMax: 80},
	RoleSaboteur: {Actions: append([]string{ActDestroyAsset, ActLurk}, commonActions...), DefaultAction: ActLurk, EarnMin: 0, EarnMax: 80},
}

// Capabilities returns the descriptor for a role. Unknown roles get the
// newborn descriptor rather than panicking mid-tick.
func Capabilities(r Role) RoleCapabilities {
	if c, ok := roleTable[r]; ok {
		return c
	}
	return roleTable[RoleNewborn]
}

func (rc RoleCapabilities) Allows(action string) bool {
	for _, a := range rc.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// GraduationRoles is the allow-list a newborn may graduate into, in a
// stable order.
func GraduationRoles() []Role {
	out := make([]Role, 0, len(roleTable))
	for r, c := range roleTable {
		if c.GraduationTarget {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func ValidRole(r Role) bool {
	_, ok := roleTable[r]
	return ok
}
