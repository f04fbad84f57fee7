package apperr

// Domain errors returned by the core packages
var (
	ErrEmptyMessage           = Validation("message must contain text or an attachment")
	ErrNoConversation         = Validation("no conversation is open")
	ErrSelfFriendRequest      = Validation("cannot send a friend request to yourself")
	ErrDuplicateFriendRequest = Conflict("a friend request between these users already exists")
	ErrAlreadyFriends         = Conflict("you are already friends")
	ErrRequestNotPending      = Conflict("friend request has already been answered")
	ErrNotRequestReceiver     = Authorization("only the receiver can answer a friend request")
	ErrProfileNotFound        = NotFound("profile not found")
	ErrFriendRequestNotFound  = NotFound("friend request not found")
	ErrInvalidGameEvent       = Validation("game event is not valid in the current state")
	ErrUnknownCategory        = Validation("unknown notification category")
)
