package devices

import (
	"time"

	"dispenser-sync/core/store"
	"dispenser-sync/core/utils"
)

// Document field names. They are the wire contract with the client
// application and must not change.
const (
	FieldRole               = "role"
	FieldDeviceID           = "deviceId"
	FieldCreatedAt          = "createdAt"
	FieldPrimaryPatientID   = "primaryPatientId"
	FieldProvisioningStatus = "provisioningStatus"
	FieldProvisionedAt      = "provisionedAt"
	FieldProvisionedBy      = "provisionedBy"
	FieldWifiConfigured     = "wifiConfigured"
	FieldLinkedUsers        = "linkedUsers"
	FieldUserID             = "userId"
	FieldStatus             = "status"
	FieldLinkedAt           = "linkedAt"
	FieldLinkedBy           = "linkedBy"
	FieldPatientID          = "patientId"
	FieldTimestamp          = "timestamp"
)

// ProvisioningActive is the provisioning status written by repairs.
const ProvisioningActive = "active"

// Role is the account type of a user.
type Role string

const (
	RolePatient   Role = "patient"
	RoleCaregiver Role = "caregiver"
)

// LinkStatus is the state of a DeviceLink.
type LinkStatus string

const (
	LinkActive  LinkStatus = "active"
	LinkRevoked LinkStatus = "revoked"
)

// User is a patient or caregiver account.
type User struct {
	ID string
	// Role is empty when the stored value is missing or unknown.
	Role      Role
	DeviceID  string
	CreatedAt time.Time
}

// EffectiveRole returns the user's role, defaulting to patient when it
// cannot be resolved. A user is never promoted to caregiver by default.
func (u User) EffectiveRole() Role {
	if u.Role == "" {
		return RolePatient
	}
	return u.Role
}

// Device is a physical dispenser.
type Device struct {
	ID                 string
	PrimaryPatientID   string
	ProvisioningStatus string
	WifiConfigured     bool
	LinkedUsers        []string
	// LinkedUsersOrdered is false when linkedUsers was stored as a map, in
	// which case LinkedUsers is sorted by id.
	LinkedUsersOrdered bool
	CreatedAt          time.Time
}

// DeviceLink is the explicit relationship between a user and a device.
type DeviceLink struct {
	ID       string
	DeviceID string
	UserID   string
	Role     Role
	Status   LinkStatus
	LinkedAt time.Time
	LinkedBy string
}

// LinkID builds the composite id of a DeviceLink.
func LinkID(deviceID, userID string) string {
	return deviceID + "_" + userID
}

// UserFromDoc decodes a users document.
func UserFromDoc(doc store.Doc) User {
	u := User{
		ID:       doc.ID,
		DeviceID: utils.ToString(doc.Fields[FieldDeviceID]),
	}
	switch Role(utils.ToString(doc.Fields[FieldRole])) {
	case RolePatient:
		u.Role = RolePatient
	case RoleCaregiver:
		u.Role = RoleCaregiver
	}
	u.CreatedAt, _ = utils.ToTime(doc.Fields[FieldCreatedAt])
	return u
}

// DeviceFromDoc decodes a devices document.
func DeviceFromDoc(doc store.Doc) Device {
	d := Device{
		ID:                 doc.ID,
		PrimaryPatientID:   utils.ToString(doc.Fields[FieldPrimaryPatientID]),
		ProvisioningStatus: utils.ToString(doc.Fields[FieldProvisioningStatus]),
		WifiConfigured:     utils.ToBool(doc.Fields[FieldWifiConfigured]),
	}
	d.LinkedUsers, d.LinkedUsersOrdered = utils.ToStringList(doc.Fields[FieldLinkedUsers])
	d.CreatedAt, _ = utils.ToTime(doc.Fields[FieldCreatedAt])
	return d
}

// LinkFromDoc decodes a deviceLinks document.
func LinkFromDoc(doc store.Doc) DeviceLink {
	l := DeviceLink{
		ID:       doc.ID,
		DeviceID: utils.ToString(doc.Fields[FieldDeviceID]),
		UserID:   utils.ToString(doc.Fields[FieldUserID]),
		Role:     Role(utils.ToString(doc.Fields[FieldRole])),
		Status:   LinkStatus(utils.ToString(doc.Fields[FieldStatus])),
		LinkedBy: utils.ToString(doc.Fields[FieldLinkedBy]),
	}
	l.LinkedAt, _ = utils.ToTime(doc.Fields[FieldLinkedAt])
	return l
}

// deviceFields is the document written when the engine materializes a device.
func deviceFields(primaryPatientID string, linkedUsers []string, now time.Time) store.Fields {
	users := make([]any, 0, len(linkedUsers))
	for _, u := range linkedUsers {
		users = append(users, u)
	}
	return store.Fields{
		FieldPrimaryPatientID:   primaryPatientID,
		FieldProvisioningStatus: ProvisioningActive,
		FieldWifiConfigured:     true,
		FieldProvisionedAt:      now,
		FieldProvisionedBy:      primaryPatientID,
		FieldLinkedUsers:        users,
		FieldCreatedAt:          now,
	}
}

// upgradeFields is the patch applied to a legacy device.
func upgradeFields(primaryPatientID string) store.Fields {
	return store.Fields{
		FieldPrimaryPatientID:   primaryPatientID,
		FieldProvisioningStatus: ProvisioningActive,
		FieldWifiConfigured:     true,
	}
}

// linkFields is the document written for a new DeviceLink.
func linkFields(deviceID, userID string, role Role, linkedAt time.Time) store.Fields {
	return store.Fields{
		FieldDeviceID: deviceID,
		FieldUserID:   userID,
		FieldRole:     string(role),
		FieldStatus:   string(LinkActive),
		FieldLinkedAt: linkedAt,
		FieldLinkedBy: userID,
	}
}
