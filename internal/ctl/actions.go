package ctl

// Indirection layer to allow stubbing in tests

var (
	fnRunGenerate = runGenerate
	fnRunVerify   = runVerify
	fnNewBackend  = newBackendFactory
	fnIsTerminal  = stdinIsTerminal
)
