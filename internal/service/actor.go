package service

import (
	"fmt"
	"strings"
)

// Capability names a permission checked by the workshop services.
type Capability string

const (
	CapAddInstance        Capability = "addinstance"
	CapEditSettings       Capability = "editsettings"
	CapSwitchPhase        Capability = "switchphase"
	CapAllocate           Capability = "allocate"
	CapManageExamples     Capability = "manageexamples"
	CapOverrideGrades     Capability = "overridegrades"
	CapDeleteSubmissions  Capability = "deletesubmissions"
	CapPublishSubmissions Capability = "publishsubmissions"
	CapIgnoreDeadlines    Capability = "ignoredeadlines"
	CapSubmit             Capability = "submit"
	CapPeerAssess         Capability = "peerassess"
	CapViewAll            Capability = "viewallsubmissions"
)

var studentCapabilities = []Capability{CapSubmit, CapPeerAssess}

var teacherCapabilities = []Capability{
	CapEditSettings,
	CapSwitchPhase,
	CapAllocate,
	CapManageExamples,
	CapOverrideGrades,
	CapDeleteSubmissions,
	CapPublishSubmissions,
	CapIgnoreDeadlines,
	CapViewAll,
	CapPeerAssess,
}

var roleCapabilities = map[string][]Capability{
	"student": studentCapabilities,
	"teacher": teacherCapabilities,
	"manager": append([]Capability{CapAddInstance}, teacherCapabilities...),
	"admin":   append([]Capability{CapAddInstance}, teacherCapabilities...),
}

// Actor is the authenticated user a workshop operation runs for.
type Actor struct {
	ID           uint
	Role         string
	Capabilities map[Capability]struct{}
}

// NewActor builds an actor with an explicit capability set.
func NewActor(id uint, role string, capabilities ...Capability) Actor {
	set := make(map[Capability]struct{}, len(capabilities))
	for _, capability := range capabilities {
		set[capability] = struct{}{}
	}
	return Actor{ID: id, Role: normalizeRole(role), Capabilities: set}
}

// ActorForRole resolves the capability set granted to a role. Unknown roles get none.
func ActorForRole(id uint, role string) Actor {
	role = normalizeRole(role)
	return NewActor(id, role, roleCapabilities[role]...)
}

// SystemActor runs unattended work such as the periodic driver.
func SystemActor() Actor {
	all := make([]Capability, 0, len(teacherCapabilities)+1)
	all = append(all, CapAddInstance)
	all = append(all, teacherCapabilities...)
	return NewActor(0, "system", all...)
}

// Can reports whether the actor holds the capability.
func (a Actor) Can(capability Capability) bool {
	_, ok := a.Capabilities[capability]
	return ok
}

func requireCapability(actor Actor, capability Capability) error {
	if !actor.Can(capability) {
		return fmt.Errorf("%w: missing capability %s", ErrForbidden, capability)
	}
	return nil
}

func normalizeRole(role string) string {
	r := strings.ToLower(strings.TrimSpace(role))
	if r == "" {
		return "system"
	}
	return r
}
