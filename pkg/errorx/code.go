package errorx

type Code int

var Unknown = Error{Code: 100000, Message: "Request failed"}

const (
	// Common codes
	BadRequest       Code = 100001
	BadResponse      Code = 100002
	PermissionDenied Code = 100003
	NotFound         Code = 100004
	Unauthenticated  Code = 100005
	AlreadyExists    Code = 100006
	Internal         Code = 100007
	Unavailable      Code = 100008
	NotImplemented   Code = 100009
	TooManyRequests  Code = 100010

	// Fairness codes
	AlreadyCommitted      Code = 200001
	NoCommitment          Code = 200002
	NotYetClosed          Code = 200003
	NoEligibleEntries     Code = 200004
	WinnerAlreadySelected Code = 200005

	// Escrow and payout codes
	InsufficientFunds Code = 300001
	EscrowHalted      Code = 300002
	PayoutRejected    Code = 300003

	// Webhook codes
	InvalidSignature Code = 400001
)
