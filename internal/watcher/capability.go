package watcher

// Capabilities records which optional storage methods are available. It is
// computed once when storage is attached so that degrade decisions never
// re-run reflection on the event path.
type Capabilities struct {
	FileListing  bool // FileLister.GetFiles
	ModuleLookup bool // ModuleResolver.GetModuleByPath / GetModule
	EdgeQueries  bool // EdgeQuerier.GetGraphEdges
}

// DetectCapabilities inspects a storage collaborator for the optional
// interfaces.
func DetectCapabilities(st Storage) Capabilities {
	var caps Capabilities
	if _, ok := st.(FileLister); ok {
		caps.FileListing = true
	}
	if _, ok := st.(ModuleResolver); ok {
		caps.ModuleLookup = true
	}
	if _, ok := st.(EdgeQuerier); ok {
		caps.EdgeQueries = true
	}
	return caps
}

// CascadeSupported reports whether storage can back cascade expansion.
func (c Capabilities) CascadeSupported() bool {
	return c.ModuleLookup && c.EdgeQueries
}
