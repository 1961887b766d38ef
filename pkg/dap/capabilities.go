package dap

// Capabilities is advertised in the initialize response.
type Capabilities struct {
	SupportsStepBack           bool `json:"supportsStepBack"`
	SupportsConfigurationDone  bool `json:"supportsConfigurationDoneRequest"`
	SupportsDisassembleRequest bool `json:"supportsDisassembleRequest"`
	SupportsLogPoints          bool `json:"supportsLogPoints"`
	SupportsRestartRequest     bool `json:"supportsRestartRequest"`
	SupportsLoadedSourcesRequest bool `json:"supportsLoadedSourcesRequest"`
}

// capabilities returns the fixed capability set advertised on initialize.
func capabilities() Capabilities {
	return Capabilities{
		SupportsStepBack:             true,
		SupportsConfigurationDone:    true,
		SupportsDisassembleRequest:   true,
		SupportsLogPoints:            true,
		SupportsRestartRequest:       true,
		SupportsLoadedSourcesRequest: false,
	}
}
