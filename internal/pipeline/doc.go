// Package pipeline runs queries through parse, decomposition, candidate
// generation, validation and ranking, reporting progress on a fleet bus
// and honouring operator control between stages.
package pipeline
