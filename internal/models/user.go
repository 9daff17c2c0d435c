package models

import "time"

// User is an account that owns registrations and packages.
// The issuer token authorizes calls to the issuing service on the user's behalf.
type User struct {
	UserID      int64
	Username    string
	IssuerToken string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasIssuerToken returns true if the user can talk to the issuing service.
func (u *User) HasIssuerToken() bool {
	return u != nil && u.IssuerToken != ""
}
