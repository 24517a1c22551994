// Package report renders pipeline results: a leaderboard with one row per
// query, as a markdown table for people and a JSON manifest for tools.
package report
