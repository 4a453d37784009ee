package yggdrasil

import "errors"

// Kind classifies engine errors for transport mapping. The HTTP layer
// turns kinds into status codes and protocol exception names without
// inspecting individual sentinels.
type Kind int

const (
	// KindInternal is the fallback for unclassified failures.
	KindInternal Kind = iota
	// KindBadOperation covers malformed or unprocessable requests.
	KindBadOperation
	// KindForbidden covers authentication and authorization refusals.
	KindForbidden
	// KindNotFound covers lookups of absent records.
	KindNotFound
	// KindTooManyRequests covers throttle refusals.
	KindTooManyRequests
)

// Error is a classified engine error.
type Error struct {
	ErrKind Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Kind returns the error's classification.
func (e *Error) Kind() Kind { return e.ErrKind }

func badOperation(msg string) *Error    { return &Error{ErrKind: KindBadOperation, Message: msg} }
func forbidden(msg string) *Error       { return &Error{ErrKind: KindForbidden, Message: msg} }
func notFound(msg string) *Error        { return &Error{ErrKind: KindNotFound, Message: msg} }
func tooManyRequests(msg string) *Error { return &Error{ErrKind: KindTooManyRequests, Message: msg} }

// Sentinel errors returned by engine operations. Messages follow the
// wording launchers show verbatim to players, so changing them is a
// compatibility break.
var (
	// ErrInvalidCredentials covers wrong username/password pairs and
	// unknown accounts alike; callers cannot probe which one it was.
	ErrInvalidCredentials = forbidden("Invalid credentials. Invalid username or password.")
	// ErrFrequentLogin is the throttle refusal for authentication
	// endpoints.
	ErrFrequentLogin = tooManyRequests("Invalid credentials. Invalid username or password.")
	// ErrInvalidToken covers absent, expired, and revoked access tokens.
	ErrInvalidToken = forbidden("Invalid token.")
	// ErrTokenUnusable is returned when a token exists but is past the
	// fully-valid half of its lifetime and the operation demands full
	// validity.
	ErrTokenUnusable = forbidden("Invalid token.")
	// ErrAccountBanned is returned while a ban is in effect.
	ErrAccountBanned = forbidden("Account is banned.")
	// ErrNotVerified is the opaque failure of has-joined verification.
	ErrNotVerified = forbidden("Session not verified.")
	// ErrProfileNotFound is returned for lookups of absent profiles.
	ErrProfileNotFound = notFound("Profile not found.")
	// ErrUserNotFound is returned for lookups of absent accounts.
	ErrUserNotFound = notFound("User not found.")
	// ErrUsernameTaken is returned when registering an existing username.
	ErrUsernameTaken = forbidden("Username is already taken.")
	// ErrProfileNameTaken is returned when a profile name is occupied.
	ErrProfileNameTaken = forbidden("Profile name is already taken.")
	// ErrInvalidUsername rejects registration logins that are not email
	// shaped when email logins are required.
	ErrInvalidUsername = badOperation("Invalid username: must be an email address.")
	// ErrInvalidProfileName rejects profile names outside the allowed
	// charset or length.
	ErrInvalidProfileName = badOperation("Invalid profile name.")
	// ErrInvalidNickname rejects nicknames above the length bound.
	ErrInvalidNickname = badOperation("Invalid nickname.")
	// ErrWeakPassword rejects passwords below the configured minimum.
	ErrWeakPassword = badOperation("Password does not meet the length requirement.")
	// ErrPasswordReuse rejects a reset to the current password.
	ErrPasswordReuse = badOperation("New password must differ from the current password.")
	// ErrInvalidInviteCode covers unknown, throttled, and banned-issuer
	// invite codes; the wording never says which.
	ErrInvalidInviteCode = forbidden("Invalid invitation code.")
	// ErrInviteRequired is returned when registration without a code is
	// attempted on an invite-only instance.
	ErrInviteRequired = forbidden("Registration requires an invitation code.")
	// ErrRegistrationClosed is returned when registration is disabled.
	ErrRegistrationClosed = forbidden("Registration is closed.")
	// ErrInvalidRescueCode rejects unknown or already-used rescue codes.
	ErrInvalidRescueCode = forbidden("Invalid rescue code.")
	// ErrProfileLimit is returned when an account is at its profile cap.
	ErrProfileLimit = forbidden("Profile limit reached.")
	// ErrNotProfileOwner is returned when operating on someone else's
	// profile.
	ErrNotProfileOwner = forbidden("Profile is owned by another account.")
	// ErrAdminRequired is returned for administrative operations invoked
	// by a regular account.
	ErrAdminRequired = forbidden("Operation requires an administrator account.")
	// ErrTextureTooLarge rejects texture uploads above the size cap.
	ErrTextureTooLarge = badOperation("Texture payload too large.")
	// ErrMissingField rejects requests with absent required fields.
	ErrMissingField = badOperation("Missing required field.")
)

// KindOf extracts the classification from any error returned by the
// engine. Unclassified errors report KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.ErrKind
	}
	return KindInternal
}
