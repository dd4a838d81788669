package devices

import (
	"errors"
	"testing"
	"time"

	"dispenser-sync/core/reconcile"
	"dispenser-sync/core/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func actionsIn(p Plan, category string) []reconcile.Action {
	var out []reconcile.Action
	for _, a := range p.Actions {
		if a.Category == category {
			out = append(out, a)
		}
	}
	return out
}

func findingFor(p Plan, key string) (reconcile.Outcome, bool) {
	for _, f := range p.Findings {
		if f.Key == key {
			return f, true
		}
	}
	return reconcile.Outcome{}, false
}

func payload(t *testing.T, a reconcile.Action) store.Fields {
	t.Helper()
	f, ok := a.Payload.(store.Fields)
	require.True(t, ok, "payload of %s is %T", a.Key, a.Payload)
	return f
}

func TestImpliedLinks_DedupesSources(t *testing.T) {
	s := NewSnapshot()
	s.Users["user1"] = User{ID: "user1", DeviceID: "d1"}
	s.Users["user2"] = User{ID: "user2"}
	s.Devices["d1"] = Device{ID: "d1", LinkedUsers: []string{"user1", "user2"}, LinkedUsersOrdered: true}
	s.RealtimeIndex["user1"] = []string{"d1", "d2"}

	links := ImpliedLinks(s)

	require.Len(t, links, 3)
	assert.Equal(t, "d1_user1", links[0].ID())
	assert.Equal(t, []LinkSource{FromUserField, FromDeviceSet, FromRealtimeIndex}, links[0].Sources)
	assert.Equal(t, "d1_user2", links[1].ID())
	assert.Equal(t, []LinkSource{FromDeviceSet}, links[1].Sources)
	assert.Equal(t, "d2_user1", links[2].ID())
	assert.Equal(t, []LinkSource{FromRealtimeIndex}, links[2].Sources)
}

func TestDetect_MissingDevice(t *testing.T) {
	s := NewSnapshot()
	s.Users["user1"] = User{ID: "user1"}
	s.RealtimeIndex["user1"] = []string{"deviceA"}

	p := Detect(s, fixedNow)

	require.Len(t, p.Actions, 2)
	assert.Empty(t, p.Warnings)

	create := p.Actions[0]
	assert.Equal(t, ActionCreateDevice, create.Type)
	assert.Equal(t, "deviceA", create.Key)
	assert.Equal(t, 0, create.Wave)
	fields := payload(t, create)
	assert.Equal(t, "user1", fields[FieldPrimaryPatientID])
	assert.Equal(t, ProvisioningActive, fields[FieldProvisioningStatus])
	assert.Equal(t, true, fields[FieldWifiConfigured])

	link := p.Actions[1]
	assert.Equal(t, ActionCreateLink, link.Type)
	assert.Equal(t, "deviceA_user1", link.Key)
	assert.Equal(t, 1, link.Wave)
	assert.Equal(t, []string{"deviceA"}, link.DependsOn)
	lf := payload(t, link)
	assert.Equal(t, string(RolePatient), lf[FieldRole])
	assert.Equal(t, string(LinkActive), lf[FieldStatus])
	assert.Equal(t, fixedNow, lf[FieldLinkedAt])
	assert.Equal(t, "user1", lf[FieldLinkedBy])
}

func TestDetect_MissingDevicePrefersPatient(t *testing.T) {
	s := NewSnapshot()
	s.Users["carer"] = User{ID: "carer", Role: RoleCaregiver}
	s.Users["patient"] = User{ID: "patient", Role: RolePatient}
	s.RealtimeIndex["carer"] = []string{"deviceA"}
	s.RealtimeIndex["patient"] = []string{"deviceA"}

	p := Detect(s, fixedNow)

	creates := actionsIn(p, CategoryMissingDevice)
	require.Len(t, creates, 1)
	assert.Equal(t, "patient", payload(t, creates[0])[FieldPrimaryPatientID])
	assert.Len(t, actionsIn(p, CategoryMissingLink), 2)
	require.Len(t, p.Warnings, 1)
	assert.True(t, errors.Is(p.Warnings[0], ErrAmbiguousTieBreak))
}

func TestDetect_SchemaUpgrade(t *testing.T) {
	users := map[string]User{
		"user2": {ID: "user2", Role: RolePatient},
		"user3": {ID: "user3", Role: RolePatient},
		"care1": {ID: "care1", Role: RoleCaregiver},
		"care2": {ID: "care2", Role: RoleCaregiver},
		"blank": {ID: "blank"},
	}

	tests := []struct {
		name         string
		linked       []string
		ordered      bool
		wantPrimary  string
		wantWarnings int
	}{
		{"EarliestInserted", []string{"user3", "user2"}, true, "user3", 0},
		{"SkipsCaregiver", []string{"care1", "user2"}, true, "user2", 0},
		{"UnknownRoleIsPatient", []string{"care1", "blank"}, true, "blank", 0},
		{"SkipsDeletedUser", []string{"ghost", "user2"}, true, "user2", 0},
		{"UnorderedUsesLowestID", []string{"user2", "user3"}, false, "user2", 1},
		{"NoPatientFallsBack", []string{"care2", "care1"}, true, "care2", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSnapshot()
			s.Users = users
			s.Devices["deviceB"] = Device{ID: "deviceB", LinkedUsers: tt.linked, LinkedUsersOrdered: tt.ordered}

			p := Detect(s, fixedNow)

			upgrades := actionsIn(p, CategorySchemaUpgrade)
			require.Len(t, upgrades, 1)
			assert.Equal(t, ActionUpdateDevice, upgrades[0].Type)
			assert.Equal(t, tt.wantPrimary, payload(t, upgrades[0])[FieldPrimaryPatientID])
			assert.Len(t, p.Warnings, tt.wantWarnings)
		})
	}
}

func TestDetect_SchemaUpgradeFindings(t *testing.T) {
	s := NewSnapshot()
	s.Users["user1"] = User{ID: "user1", Role: RolePatient}
	s.Devices["done"] = Device{ID: "done", PrimaryPatientID: "user1", LinkedUsers: []string{"user1"}, LinkedUsersOrdered: true}
	s.Devices["empty"] = Device{ID: "empty"}
	s.Devices["orphan"] = Device{ID: "orphan", LinkedUsers: []string{"ghost"}, LinkedUsersOrdered: true}
	s.Links["done_user1"] = DeviceLink{ID: "done_user1", Status: LinkActive}

	p := Detect(s, fixedNow)

	assert.Empty(t, actionsIn(p, CategorySchemaUpgrade))

	f, ok := findingFor(p, "done")
	require.True(t, ok)
	assert.Equal(t, reconcile.StatusSkipped, f.Status)

	f, ok = findingFor(p, "empty")
	require.True(t, ok)
	assert.Equal(t, reconcile.StatusSkipped, f.Status)

	f, ok = findingFor(p, "orphan")
	require.True(t, ok)
	assert.Equal(t, reconcile.StatusUnresolvable, f.Status)
	assert.Contains(t, f.Reason, ErrReferentialGap.Error())
}

func TestDetect_MissingLinkRules(t *testing.T) {
	deviceCreated := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	userCreated := time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC)

	s := NewSnapshot()
	s.Users["user1"] = User{ID: "user1", Role: RolePatient, CreatedAt: userCreated}
	s.Users["care"] = User{ID: "care", Role: RoleCaregiver, DeviceID: "nowhere"}
	s.Devices["old"] = Device{ID: "old", PrimaryPatientID: "user1", LinkedUsers: []string{"user1", "care", "ghost"}, LinkedUsersOrdered: true, CreatedAt: deviceCreated}
	s.Devices["young"] = Device{ID: "young", PrimaryPatientID: "user1", LinkedUsers: []string{"user1"}, LinkedUsersOrdered: true}
	s.Devices["revoked"] = Device{ID: "revoked", PrimaryPatientID: "user1", LinkedUsers: []string{"user1"}, LinkedUsersOrdered: true}
	s.Links["revoked_user1"] = DeviceLink{ID: "revoked_user1", Status: LinkRevoked}

	p := Detect(s, fixedNow)

	links := make(map[string]reconcile.Action)
	for _, a := range actionsIn(p, CategoryMissingLink) {
		links[a.Key] = a
	}
	require.Len(t, links, 3)

	assert.Equal(t, deviceCreated, payload(t, links["old_user1"])[FieldLinkedAt])
	assert.Equal(t, string(RoleCaregiver), payload(t, links["old_care"])[FieldRole])
	assert.Equal(t, userCreated, payload(t, links["young_user1"])[FieldLinkedAt])
	assert.Empty(t, links["old_user1"].DependsOn)

	f, ok := findingFor(p, "revoked_user1")
	require.True(t, ok)
	assert.Equal(t, reconcile.StatusSkipped, f.Status)

	f, ok = findingFor(p, "old_ghost")
	require.True(t, ok)
	assert.Equal(t, reconcile.StatusUnresolvable, f.Status)

	f, ok = findingFor(p, "nowhere_care")
	require.True(t, ok)
	assert.Equal(t, reconcile.StatusUnresolvable, f.Status)
	assert.Contains(t, f.Reason, "device nowhere does not exist")
}

func TestDetect_IncompleteSuppressesDependentCategories(t *testing.T) {
	build := func() *Snapshot {
		s := NewSnapshot()
		s.Users["user1"] = User{ID: "user1"}
		s.Devices["deviceB"] = Device{ID: "deviceB", LinkedUsers: []string{"user1"}, LinkedUsersOrdered: true}
		s.RealtimeIndex["user1"] = []string{"deviceA"}
		return s
	}

	tests := []struct {
		name       string
		incomplete string
		want       map[string]int
	}{
		{"Complete", "", map[string]int{CategoryMissingDevice: 1, CategorySchemaUpgrade: 1, CategoryMissingLink: 2}},
		{"Links", EntityDeviceLinks, map[string]int{CategoryMissingDevice: 1, CategorySchemaUpgrade: 1}},
		{"Index", EntityRealtimeIndex, map[string]int{CategorySchemaUpgrade: 1, CategoryMissingLink: 1}},
		{"Users", EntityUsers, map[string]int{}},
		{"Devices", EntityDevices, map[string]int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := build()
			if tt.incomplete != "" {
				s.Incomplete[tt.incomplete] = true
			}
			if tt.incomplete == EntityRealtimeIndex {
				s.RealtimeIndex = map[string][]string{}
			}

			p := Detect(s, fixedNow)

			got := make(map[string]int)
			for _, a := range p.Actions {
				got[a.Category]++
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetect_Deterministic(t *testing.T) {
	s := NewSnapshot()
	for _, id := range []string{"u5", "u1", "u3", "u2", "u4"} {
		s.Users[id] = User{ID: id}
		s.RealtimeIndex[id] = []string{"d-" + id, "shared"}
	}
	s.Devices["legacy"] = Device{ID: "legacy", LinkedUsers: []string{"u4", "u2"}, LinkedUsersOrdered: false}

	first := Detect(s, fixedNow)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Detect(s, fixedNow))
	}
}
