package models

import "time"

// Device identifies a (user, IP, user-agent) triple. The triple is unique;
// repeated sightings update LastLogin instead of creating duplicates.
// IsTrusted is only ever set by an explicit operation.
type Device struct {
	ID        string
	UserID    string
	IPAddress string
	UserAgent string
	OS        string
	Browser   string
	IsTrusted bool
	LastLogin time.Time
}
