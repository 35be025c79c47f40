// Package events defines the broadcast event envelope and the payload types
// exchanged between the task service, the hub, and connected clients.
package events
