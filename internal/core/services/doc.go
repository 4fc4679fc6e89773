// Package services implements the driving port interfaces.
// Services hold the retrieval and conversation logic and orchestrate
// calls to driven ports (adapters).
//
// Services are pure Go with no CGO or external dependencies beyond uuid.
package services
