package engine

const (
	authzQuery     = "data.clavionx.authz.allow"
	twoFactorQuery = "data.clavionx.two_factor"
)

// Role to permission table, one set per role.
const authzPolicy = `package clavionx.authz

role_permissions := {
	"SUPER_ADMIN": {
		"SYSTEM_MANAGE", "USER_MANAGE_ALL", "COURSE_MANAGE_ALL", "ANALYTICS_VIEW_ALL",
		"SETTINGS_MANAGE", "BACKUP_MANAGE", "AUDIT_VIEW"
	},
	"ADMIN": {
		"COURSE_MANAGE_ALL", "STUDENT_MANAGE_ALL", "TEACHER_MANAGE_ALL", "ANALYTICS_VIEW_ALL",
		"REPORTS_GENERATE", "SCHEDULE_MANAGE"
	},
	"MANAGER": {
		"COURSE_CREATE", "COURSE_EDIT_ALL", "TEACHER_ASSIGN", "STUDENT_VIEW_ALL",
		"ANALYTICS_VIEW_LIMITED", "REPORTS_VIEW", "COMMUNICATION_SEND"
	},
	"TEACHER": {
		"COURSE_CREATE_OWN", "COURSE_EDIT_OWN", "STUDENT_MANAGE_OWN", "TASK_MANAGE_OWN",
		"GRADE_MANAGE_OWN", "ANALYTICS_VIEW_OWN", "REPORTS_VIEW_OWN"
	},
	"ANALYST": {
		"ANALYTICS_VIEW_ALL", "REPORTS_GENERATE", "REPORTS_VIEW", "DATA_EXPORT", "STATISTICS_VIEW"
	},
	"MODERATOR": {
		"CONTENT_MODERATE", "STUDENT_APPLICATIONS_MANAGE", "SUPPORT_PROVIDE",
		"COMMUNICATION_MODERATE", "REPORTS_VIEW"
	},
	"STUDENT": {
		"COURSE_VIEW", "COURSE_ENROLL", "TASK_SUBMIT", "GRADE_VIEW_OWN", "PROGRESS_VIEW_OWN",
		"PROFILE_EDIT_OWN"
	},
	"GUEST": {"COURSE_VIEW_PUBLIC", "REGISTRATION_REQUEST"}
}

default allow := false

allow if input.permission in role_permissions[input.role]
`

// Built-in two-factor rules. Operator modules in the same package may add further
// "required if ..." or "remember_allowed := false if ..." rules.
const twoFactorPolicy = `package clavionx.two_factor

default required := false

default remember_allowed := true

required if {
	input.user.two_factor_enabled
	not input.device.trusted
}

remember_allowed := false if input.user.role == "SUPER_ADMIN"
`
