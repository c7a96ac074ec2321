package models

// Comment markers posted by the loop. FeedbackSignature is load-bearing: the
// three-strikes rule counts thread comments containing it, so the string is
// versioned — changing the text without bumping the version silently resets
// every open change's strike count.
const (
	FeedbackSignature = "[warden-review v1] Changes requested"
	ApprovalMarker    = "[warden-review v1] Approved"
	StaleMarker       = "[warden-review v1] Closed as stale"

	// ManualReviewNotice is posted once on oversized changes; the gate checks
	// the thread for it before posting again.
	ManualReviewNotice = "[warden-review v1] Change exceeds the automated review ceiling; manual review required."
)
