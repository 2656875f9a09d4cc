// Package remote provides sync targets: a REST client for the app data
// service and a scripted in-memory target for tests and scenarios.
//
// Both satisfy engine.Target.
package remote
