package domain

// Policy is one operator-supplied Rego module compiled next to the built-in policies.
type Policy struct {
	Name    string // module file name, used in compile errors
	Rules   string // Rego source
	Enabled bool
}
