package diagnose

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"dispenser-sync/core/reconcile"
	"dispenser-sync/core/store"
	"dispenser-sync/core/utils"
	"dispenser-sync/feature/devices"

	"go.uber.org/zap"
)

// ErrMissingCaregiver is returned when no caregiver id is given.
var ErrMissingCaregiver = errors.New("caregiver id is required")

// Patient sources.
const (
	SourceUserField  = "user_field"
	SourceDeviceLink = "device_link"
	SourcePrimary    = "primary"
)

// PatientFindings describes one (device, patient) pair.
type PatientFindings struct {
	PatientID    string   `json:"patient_id"`
	Sources      []string `json:"sources"`
	Medications  int      `json:"medications"`
	RecentEvents int      `json:"recent_events"`
}

// DeviceFindings describes one device tied to the caregiver.
type DeviceFindings struct {
	DeviceID           string            `json:"device_id"`
	Exists             bool              `json:"exists"`
	PrimaryPatientID   string            `json:"primary_patient_id,omitempty"`
	ProvisioningStatus string            `json:"provisioning_status,omitempty"`
	HasConfig          bool              `json:"has_config"`
	HasState           bool              `json:"has_state"`
	CaregiverLink      string            `json:"caregiver_link"`
	Patients           []PatientFindings `json:"patients"`
}

// DriftItem is a pending repair or an unresolvable inconsistency.
type DriftItem struct {
	Category string `json:"category"`
	Key      string `json:"key"`
	Status   string `json:"status"`
	Action   string `json:"action,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// AuditFindings is the result of one diagnosis.
type AuditFindings struct {
	CaregiverID       string           `json:"caregiver_id"`
	CaregiverExists   bool             `json:"caregiver_exists"`
	CaregiverRole     string           `json:"caregiver_role,omitempty"`
	GeneratedAt       time.Time        `json:"generated_at"`
	RecentWindowHours int              `json:"recent_window_hours"`
	Devices           []DeviceFindings `json:"devices"`
	Drift             []DriftItem      `json:"drift"`
	Errors            []string         `json:"errors,omitempty"`
}

// Service runs diagnoses.
type Service struct {
	docs    store.DocumentStore
	devices *devices.Service
	logger  *zap.Logger
	window  time.Duration
	now     func() time.Time
}

// NewService creates a diagnosis service reading through the stores of svc.
func NewService(docs store.DocumentStore, svc *devices.Service, logger *zap.Logger, cfg reconcile.Config) *Service {
	hours := cfg.RecentEventsHours
	if hours <= 0 {
		hours = 168
	}
	return &Service{
		docs:    docs,
		devices: svc,
		logger:  logger,
		window:  time.Duration(hours) * time.Hour,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Diagnose audits the caregiver's devices. When deviceID is empty the devices
// are discovered from the caregiver's user record, realtime index and links.
// Read failures are reported in the findings instead of aborting.
func (s *Service) Diagnose(ctx context.Context, caregiverID, deviceID string) (*AuditFindings, error) {
	if caregiverID == "" {
		return nil, ErrMissingCaregiver
	}

	f := &AuditFindings{
		CaregiverID:       caregiverID,
		GeneratedAt:       s.now(),
		RecentWindowHours: int(s.window / time.Hour),
		Devices:           make([]DeviceFindings, 0),
		Drift:             make([]DriftItem, 0),
	}
	fail := func(what string, err error) {
		f.Errors = append(f.Errors, fmt.Sprintf("%s: %v", what, err))
	}

	readers := s.devices.Readers()

	var caregiver devices.User
	fields, err := s.docs.GetDoc(ctx, store.CollectionUsers, caregiverID)
	switch {
	case err == nil:
		caregiver = devices.UserFromDoc(store.Doc{ID: caregiverID, Fields: fields})
		f.CaregiverExists = true
		f.CaregiverRole = string(caregiver.Role)
	case !store.IsNotFound(err):
		fail("caregiver", err)
	}

	deviceIDs := []string{deviceID}
	if deviceID == "" {
		deviceIDs = s.discoverDevices(ctx, readers, caregiverID, caregiver.DeviceID, fail)
	}

	for _, id := range deviceIDs {
		f.Devices = append(f.Devices, s.inspectDevice(ctx, readers, caregiverID, id, fail))
	}

	if len(deviceIDs) > 0 {
		plan, incomplete := s.devices.Plan(ctx)
		for _, e := range incomplete {
			f.Errors = append(f.Errors, "incomplete: "+e)
		}
		f.Drift = driftFor(plan, deviceIDs)
	}

	s.logger.Info("Diagnosis completed",
		zap.String("caregiver_id", caregiverID),
		zap.Int("devices", len(f.Devices)),
		zap.Int("drift", len(f.Drift)),
		zap.Int("errors", len(f.Errors)),
	)
	return f, nil
}

func (s *Service) discoverDevices(ctx context.Context, readers *devices.Readers, caregiverID, legacyDeviceID string, fail func(string, error)) []string {
	set := make(map[string]bool)
	if legacyDeviceID != "" {
		set[legacyDeviceID] = true
	}

	ids, err := readers.LoadRealtimeDevicesFor(ctx, caregiverID)
	if err != nil {
		fail("realtime index", err)
	}
	for _, id := range ids {
		set[id] = true
	}

	links, err := s.docs.QueryByField(ctx, store.CollectionDeviceLinks, devices.FieldUserID, caregiverID)
	if err != nil {
		fail("caregiver links", err)
	}
	for _, doc := range links {
		link := devices.LinkFromDoc(doc)
		if link.DeviceID != "" && link.Status != devices.LinkRevoked {
			set[link.DeviceID] = true
		}
	}

	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *Service) inspectDevice(ctx context.Context, readers *devices.Readers, caregiverID, deviceID string, fail func(string, error)) DeviceFindings {
	d := DeviceFindings{DeviceID: deviceID, CaregiverLink: "missing", Patients: make([]PatientFindings, 0)}
	sources := make(map[string][]string)
	addSource := func(patientID, source string) {
		if patientID == "" {
			return
		}
		for _, existing := range sources[patientID] {
			if existing == source {
				return
			}
		}
		sources[patientID] = append(sources[patientID], source)
	}

	users, err := s.docs.QueryByField(ctx, store.CollectionUsers, devices.FieldDeviceID, deviceID)
	if err != nil {
		fail("users by device "+deviceID, err)
	}
	for _, doc := range users {
		if devices.UserFromDoc(doc).EffectiveRole() == devices.RolePatient {
			addSource(doc.ID, SourceUserField)
		}
	}

	links, err := s.docs.QueryByField(ctx, store.CollectionDeviceLinks, devices.FieldDeviceID, deviceID)
	if err != nil {
		fail("links of device "+deviceID, err)
	}
	for _, doc := range links {
		link := devices.LinkFromDoc(doc)
		if link.UserID == caregiverID {
			d.CaregiverLink = string(link.Status)
			if d.CaregiverLink == "" {
				d.CaregiverLink = "unknown"
			}
		}
		if link.Role == devices.RolePatient && link.Status != devices.LinkRevoked {
			addSource(link.UserID, SourceDeviceLink)
		}
	}

	fields, err := s.docs.GetDoc(ctx, store.CollectionDevices, deviceID)
	switch {
	case err == nil:
		device := devices.DeviceFromDoc(store.Doc{ID: deviceID, Fields: fields})
		d.Exists = true
		d.PrimaryPatientID = device.PrimaryPatientID
		d.ProvisioningStatus = device.ProvisioningStatus
		addSource(device.PrimaryPatientID, SourcePrimary)
	case !store.IsNotFound(err):
		fail("device "+deviceID, err)
	}

	mirror, err := readers.LoadRealtimeMirror(ctx, deviceID)
	if err != nil {
		fail("realtime mirror "+deviceID, err)
	}
	d.HasConfig = mirror.HasConfig
	d.HasState = mirror.HasState

	patientIDs := make([]string, 0, len(sources))
	for id := range sources {
		patientIDs = append(patientIDs, id)
	}
	sort.Strings(patientIDs)
	for _, id := range patientIDs {
		d.Patients = append(d.Patients, s.inspectPatient(ctx, id, sources[id], fail))
	}
	return d
}

func (s *Service) inspectPatient(ctx context.Context, patientID string, sources []string, fail func(string, error)) PatientFindings {
	p := PatientFindings{PatientID: patientID, Sources: sources}

	meds, err := s.docs.QueryByField(ctx, store.CollectionMedications, devices.FieldPatientID, patientID)
	if err != nil {
		fail("medications of "+patientID, err)
	}
	p.Medications = len(meds)

	events, err := s.docs.QueryByField(ctx, store.CollectionMedicationEvents, devices.FieldPatientID, patientID)
	if err != nil {
		fail("medication events of "+patientID, err)
	}
	since := s.now().Add(-s.window)
	for _, doc := range events {
		if ts, ok := utils.ToTime(doc.Fields[devices.FieldTimestamp]); ok && !ts.Before(since) {
			p.RecentEvents++
		}
	}
	return p
}

// driftFor keeps the planned repairs and unresolvable findings touching the
// given devices.
func driftFor(plan devices.Plan, deviceIDs []string) []DriftItem {
	wanted := make(map[string]bool, len(deviceIDs))
	for _, id := range deviceIDs {
		wanted[id] = true
	}
	touches := func(category, key string) bool {
		return wanted[plan.DeviceOf(category, key)]
	}

	items := make([]DriftItem, 0)
	for _, a := range plan.Actions {
		if touches(a.Category, a.Key) {
			items = append(items, DriftItem{
				Category: a.Category,
				Key:      a.Key,
				Status:   string(reconcile.StatusPlanned),
				Action:   string(a.Type),
				Reason:   a.Reason,
			})
		}
	}
	for _, o := range plan.Findings {
		if o.Status == reconcile.StatusUnresolvable && touches(o.Category, o.Key) {
			items = append(items, DriftItem{
				Category: o.Category,
				Key:      o.Key,
				Status:   string(o.Status),
				Reason:   o.Reason,
			})
		}
	}
	return items
}
