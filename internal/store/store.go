// Package store defines the persistence contracts for users, registrations,
// credentials, packages and activation keys.
package store

import "errors"

// Errors
var (
	ErrUserNotFound         = errors.New("user not found")
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrRegistrationExists   = errors.New("registration already exists")
	ErrCredentialNotFound   = errors.New("credential not found")
	ErrPackageNotFound      = errors.New("package not found")
	ErrPackageSigned        = errors.New("package already signed")
	ErrKeyNotFound          = errors.New("activation key not found")
	ErrKeyUsed              = errors.New("activation key already used")
	ErrKeyExists            = errors.New("activation key already exists")
)

// Stores bundles every store implementation behind one value so callers can
// switch backends in one place.
type Stores struct {
	Users         UserStore
	Registrations RegistrationStore
	Credentials   CredentialStore
	Packages      PackageStore
	Keys          KeyStore
}
