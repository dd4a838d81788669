package devices

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"dispenser-sync/core/reconcile"
)

// Report categories, in evaluation order.
const (
	CategoryMissingDevice = "missing_device"
	CategorySchemaUpgrade = "schema_upgrade"
	CategoryMissingLink   = "missing_link"
)

// Categories lists the report categories in render order.
var Categories = []string{CategoryMissingDevice, CategorySchemaUpgrade, CategoryMissingLink}

// Repair actions.
const (
	ActionCreateDevice reconcile.ActionType = "create_device"
	ActionUpdateDevice reconcile.ActionType = "update_device"
	ActionCreateLink   reconcile.ActionType = "create_device_link"
)

// Waves. Links reference devices, so devices are written first.
const (
	waveDevices = 0
	waveLinks   = 1
)

// LinkSource names where an implied relationship was observed.
type LinkSource string

const (
	FromUserField     LinkSource = "user_field"
	FromDeviceSet     LinkSource = "device_set"
	FromRealtimeIndex LinkSource = "realtime_index"
)

// ImpliedLink is a (device, user) relationship inferred from the data,
// regardless of whether an explicit DeviceLink exists.
type ImpliedLink struct {
	DeviceID string
	UserID   string
	Sources  []LinkSource
}

// ID returns the composite DeviceLink id of the pair.
func (l ImpliedLink) ID() string {
	return LinkID(l.DeviceID, l.UserID)
}

// Plan is the output of Detect.
type Plan struct {
	// Actions are the writes needed to converge.
	Actions []reconcile.Action
	// Findings are entities that need no write: already consistent, or
	// drift the engine is not allowed to repair.
	Findings []reconcile.Outcome
	// Warnings are non-fatal anomalies resolved by a deterministic rule.
	Warnings []error

	linkDevices map[string]string
}

// DeviceOf returns the device an action or finding key refers to.
func (p Plan) DeviceOf(category, key string) string {
	if category == CategoryMissingLink {
		return p.linkDevices[key]
	}
	return key
}

// ImpliedLinks collects every implied pair from the three sources,
// deduplicated and sorted by device then user.
func ImpliedLinks(s *Snapshot) []ImpliedLink {
	type pair struct{ device, user string }
	byPair := make(map[pair]*ImpliedLink)

	add := func(deviceID, userID string, src LinkSource) {
		if deviceID == "" || userID == "" {
			return
		}
		p := pair{deviceID, userID}
		il, ok := byPair[p]
		if !ok {
			il = &ImpliedLink{DeviceID: deviceID, UserID: userID}
			byPair[p] = il
		}
		for _, existing := range il.Sources {
			if existing == src {
				return
			}
		}
		il.Sources = append(il.Sources, src)
	}

	for _, id := range sortedKeys(s.Users) {
		u := s.Users[id]
		add(u.DeviceID, u.ID, FromUserField)
	}
	for _, id := range sortedKeys(s.Devices) {
		d := s.Devices[id]
		for _, userID := range d.LinkedUsers {
			add(d.ID, userID, FromDeviceSet)
		}
	}
	for _, userID := range sortedKeys(s.RealtimeIndex) {
		for _, deviceID := range s.RealtimeIndex[userID] {
			add(deviceID, userID, FromRealtimeIndex)
		}
	}

	out := make([]ImpliedLink, 0, len(byPair))
	for _, il := range byPair {
		out = append(out, *il)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DeviceID != out[j].DeviceID {
			return out[i].DeviceID < out[j].DeviceID
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// Detect computes the repairs needed to bring s to a consistent state.
// Categories whose inputs were not fully loaded are not evaluated.
func Detect(s *Snapshot, now time.Time) Plan {
	var p Plan
	created := p.missingDevices(s, now)
	p.schemaUpgrades(s)
	p.missingLinks(s, created, now)
	return p
}

func (p *Plan) finding(category, key string, status reconcile.Status, reason string) {
	p.Findings = append(p.Findings, reconcile.Outcome{
		Category: category,
		Key:      key,
		Status:   status,
		Reason:   reason,
	})
}

// missingDevices emits a CreateDevice for every device id present in a
// realtime index but absent from the devices collection. It returns the ids
// it plans to create.
func (p *Plan) missingDevices(s *Snapshot, now time.Time) map[string]bool {
	created := make(map[string]bool)
	if !s.Complete(EntityUsers, EntityDevices, EntityRealtimeIndex) {
		return created
	}

	indexedBy := make(map[string][]string)
	for _, userID := range sortedKeys(s.RealtimeIndex) {
		for _, deviceID := range s.RealtimeIndex[userID] {
			indexedBy[deviceID] = append(indexedBy[deviceID], userID)
		}
	}

	for _, deviceID := range sortedKeys(indexedBy) {
		if _, ok := s.Devices[deviceID]; ok {
			p.finding(CategoryMissingDevice, deviceID, reconcile.StatusSkipped, "device document exists")
			continue
		}

		users := indexedBy[deviceID]
		primary, ok := p.choosePrimary(deviceID, users, len(users) == 1, s.Users)
		if !ok {
			p.finding(CategoryMissingDevice, deviceID, reconcile.StatusUnresolvable,
				fmt.Sprintf("%v: no existing user indexes device %s", ErrReferentialGap, deviceID))
			continue
		}

		created[deviceID] = true
		p.Actions = append(p.Actions, reconcile.Action{
			Type:     ActionCreateDevice,
			Category: CategoryMissingDevice,
			Key:      deviceID,
			Wave:     waveDevices,
			Reason:   fmt.Sprintf("indexed in realtime store by %s but absent from devices", strings.Join(users, ", ")),
			Payload:  deviceFields(primary, users, now),
		})
	}
	return created
}

// schemaUpgrades emits an UpdateDevice for every device with linked users
// but no primary patient.
func (p *Plan) schemaUpgrades(s *Snapshot) {
	if !s.Complete(EntityUsers, EntityDevices) {
		return
	}

	for _, deviceID := range sortedKeys(s.Devices) {
		d := s.Devices[deviceID]
		switch {
		case d.PrimaryPatientID != "":
			p.finding(CategorySchemaUpgrade, deviceID, reconcile.StatusSkipped, "primaryPatientId set")
			continue
		case len(d.LinkedUsers) == 0:
			p.finding(CategorySchemaUpgrade, deviceID, reconcile.StatusSkipped, "no linked users to promote")
			continue
		}

		primary, ok := p.choosePrimary(deviceID, d.LinkedUsers, d.LinkedUsersOrdered, s.Users)
		if !ok {
			p.finding(CategorySchemaUpgrade, deviceID, reconcile.StatusUnresolvable,
				fmt.Sprintf("%v: none of the linked users %s exist", ErrReferentialGap, strings.Join(d.LinkedUsers, ", ")))
			continue
		}

		p.Actions = append(p.Actions, reconcile.Action{
			Type:     ActionUpdateDevice,
			Category: CategorySchemaUpgrade,
			Key:      deviceID,
			Wave:     waveDevices,
			Reason:   fmt.Sprintf("primaryPatientId missing, promoting %s", primary),
			Payload:  upgradeFields(primary),
		})
	}
}

// missingLinks emits a CreateDeviceLink for every implied pair without a
// DeviceLink. Existing links are never touched, whatever their status.
func (p *Plan) missingLinks(s *Snapshot, created map[string]bool, now time.Time) {
	if !s.Complete(EntityUsers, EntityDevices, EntityDeviceLinks) {
		return
	}

	p.linkDevices = make(map[string]string)
	for _, il := range ImpliedLinks(s) {
		id := il.ID()
		p.linkDevices[id] = il.DeviceID

		user, userExists := s.Users[il.UserID]
		if !userExists {
			p.finding(CategoryMissingLink, id, reconcile.StatusUnresolvable,
				fmt.Sprintf("%v: user %s does not exist", ErrReferentialGap, il.UserID))
			continue
		}

		device, deviceExists := s.Devices[il.DeviceID]
		if !deviceExists && !created[il.DeviceID] {
			p.finding(CategoryMissingLink, id, reconcile.StatusUnresolvable,
				fmt.Sprintf("%v: device %s does not exist", ErrReferentialGap, il.DeviceID))
			continue
		}

		if link, ok := s.Links[id]; ok {
			reason := "link exists"
			if link.Status == LinkRevoked {
				reason = "link revoked, left untouched"
			}
			p.finding(CategoryMissingLink, id, reconcile.StatusSkipped, reason)
			continue
		}

		linkedAt := now
		switch {
		case deviceExists && !device.CreatedAt.IsZero():
			linkedAt = device.CreatedAt
		case created[il.DeviceID]:
			// created in this pass, stamped with now
		case !user.CreatedAt.IsZero():
			linkedAt = user.CreatedAt
		}

		action := reconcile.Action{
			Type:     ActionCreateLink,
			Category: CategoryMissingLink,
			Key:      id,
			Wave:     waveLinks,
			Reason:   fmt.Sprintf("implied by %s", joinSources(il.Sources)),
			Payload:  linkFields(il.DeviceID, il.UserID, user.EffectiveRole(), linkedAt),
		}
		if created[il.DeviceID] {
			action.DependsOn = []string{il.DeviceID}
		}
		p.Actions = append(p.Actions, action)
	}
}

// choosePrimary picks the primary patient among candidates. Candidates that
// are not existing users are ignored. The first patient wins; when no
// candidate is a patient the first existing one is used. ordered reports
// whether candidates carry a meaningful insertion order; without it the
// lowest id wins and the choice is flagged.
func (p *Plan) choosePrimary(deviceID string, candidates []string, ordered bool, users map[string]User) (string, bool) {
	if !ordered && len(candidates) > 1 {
		sorted := append([]string(nil), candidates...)
		sort.Strings(sorted)
		candidates = sorted
		p.Warnings = append(p.Warnings, fmt.Errorf("%w: device %s candidates %s have no insertion order, using lowest id",
			ErrAmbiguousTieBreak, deviceID, strings.Join(candidates, ", ")))
	}

	first := ""
	for _, id := range candidates {
		u, ok := users[id]
		if !ok {
			continue
		}
		if first == "" {
			first = id
		}
		if u.EffectiveRole() == RolePatient {
			return id, true
		}
	}
	if first == "" {
		return "", false
	}
	p.Warnings = append(p.Warnings, fmt.Errorf("%w: device %s has no patient among %s, using %s",
		ErrAmbiguousTieBreak, deviceID, strings.Join(candidates, ", "), first))
	return first, true
}

func joinSources(sources []LinkSource) string {
	parts := make([]string, len(sources))
	for i, s := range sources {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
