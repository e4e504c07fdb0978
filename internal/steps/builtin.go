package steps

// RegisterBuiltins installs the standard step catalogue into r. Safe to call
// more than once; re-registration is a no-op.
func RegisterBuiltins(r *Registry) {
	registerColumnSteps(r)
	registerRowSteps(r)
	registerCleanSteps(r)
	registerCombineSteps(r)
	registerHashStep(r)
}
