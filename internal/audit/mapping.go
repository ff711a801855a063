package audit

import "strings"

// ActionResource holds action and resource derived from a gRPC full method name.
type ActionResource struct {
	Action   string
	Resource string
}

// Admin methods whose resource is not the service name.
var methodOverrides = map[string]ActionResource{
	"/clavionx.admin.v1.AdminService/UnlockAccount":         {Action: "unlock", Resource: "account"},
	"/clavionx.admin.v1.AdminService/TerminateUserSessions": {Action: "terminate", Resource: "session"},
	"/clavionx.admin.v1.AdminService/ListUserSessions":      {Action: "list", Resource: "session"},
	"/clavionx.admin.v1.AdminService/RevokeUserDevices":     {Action: "revoke", Resource: "trusted_device"},
}

// ParseFullMethod returns action and resource for a gRPC full method (e.g. /clavionx.admin.v1.AdminService/UnlockAccount).
// Action is a verb: get, list, create, update, delete, or a lowercase method name for others.
// Resource is derived from the service name (e.g. AdminService -> admin) unless overridden above.
func ParseFullMethod(fullMethod string) ActionResource {
	if ar, ok := methodOverrides[fullMethod]; ok {
		return ar
	}
	// fullMethod format: /package.v1.ServiceName/MethodName
	slash := strings.LastIndex(fullMethod, "/")
	if slash < 0 {
		return ActionResource{Action: "unknown", Resource: "unknown"}
	}
	method := fullMethod[slash+1:]
	beforeSlash := fullMethod[:slash]
	dot := strings.LastIndex(beforeSlash, ".")
	if dot < 0 {
		return ActionResource{Action: strings.ToLower(method), Resource: "unknown"}
	}
	serviceName := beforeSlash[dot+1:]
	return ActionResource{Action: methodToAction(method), Resource: serviceToResource(serviceName)}
}

func serviceToResource(serviceName string) string {
	s := strings.TrimSuffix(serviceName, "Service")
	if s == "" {
		return "unknown"
	}
	return strings.ToLower(s[0:1]) + s[1:]
}

func methodToAction(method string) string {
	prefixes := []struct{ prefix, action string }{
		{"List", "list"},
		{"Create", "create"},
		{"Update", "update"},
		{"Delete", "delete"},
		{"Unlock", "unlock"},
		{"Terminate", "terminate"},
		{"Revoke", "revoke"},
	}
	if strings.HasPrefix(method, "Get") && method != "Get" {
		return "get"
	}
	for _, p := range prefixes {
		if strings.HasPrefix(method, p.prefix) {
			return p.action
		}
	}
	return strings.ToLower(method)
}
