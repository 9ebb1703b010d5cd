package auth

// Permission represents a named capability in the system.
type Permission string

// Permission constants.
const (
	PermDeviceRead      Permission = "device:read"
	PermDeviceOperate   Permission = "device:operate"
	PermDeviceConfigure Permission = "device:configure"
	PermTimetableManage Permission = "timetable:manage"
	PermSchoolManage    Permission = "school:manage"
	PermUserManage      Permission = "user:manage"
	PermSystemAdmin     Permission = "system:admin"
)

// rolePermissions maps each role to its granted permissions.
// This is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleUser: {
		PermDeviceRead,
		PermDeviceOperate, // assignment-scoped: only devices assigned to them
	},
	RoleManager: {
		PermDeviceRead,
		PermDeviceOperate,
		PermDeviceConfigure,
		PermTimetableManage, // school-scoped
	},
	RoleAdmin: {
		PermDeviceRead,
		PermDeviceOperate,
		PermDeviceConfigure,
		PermTimetableManage,
		PermSchoolManage,
		PermUserManage,
		PermSystemAdmin,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	perms, ok := rolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns all permissions granted to a role.
// Returns nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}

// IsSchoolScoped returns true if the role's permissions apply only within
// the account's own school. Admins see every school.
func IsSchoolScoped(role Role) bool {
	return role == RoleManager || role == RoleUser
}

// CanAccessSchool reports whether claims permit operating on a school's
// records. Admin claims carry no school and pass for all of them.
func (c *CustomClaims) CanAccessSchool(schoolID string) bool {
	if !IsSchoolScoped(c.Role) {
		return true
	}
	return c.SchoolID != "" && c.SchoolID == schoolID
}
