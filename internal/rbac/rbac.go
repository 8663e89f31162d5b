package rbac

type Role string
type Action string

const (
	RoleResident Role = "resident"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

const (
	ActionRead            Action = "read"
	ActionSubmit          Action = "submit"
	ActionProcess         Action = "process"
	ActionAccept          Action = "accept"
	ActionDecline         Action = "decline"
	ActionRestore         Action = "restore"
	ActionReprint         Action = "reprint"
	ActionManageOfficials Action = "manage_officials"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleStaff:
		return action == ActionRead || action == ActionSubmit
	case RoleResident:
		return action == ActionSubmit
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleResident, RoleStaff, RoleAdmin:
		return Role(role)
	default:
		return RoleResident
	}
}
