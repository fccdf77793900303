package domain

const (
	SessionUserIdCtxKey = "flock-sessionUserId"
	SessionEmailCtxKey  = "flock-sessionEmail"
	SessionTenantCtxKey = "flock-sessionTenant"
	SessionRoleCtxKey   = "flock-sessionRole"
)

const (
	// SyntheticEmailDomain marks placeholder addresses minted for profiles without a real one.
	SyntheticEmailDomain = "anonymous.local"
	// UnverifiedEmailMarker appears in addresses the identity provider could not verify.
	UnverifiedEmailMarker = "unverified"
)

// NoticeChannel is the realtime channel a recipient's notices are mirrored to.
func NoticeChannel(recipientID string) string {
	return "notice:" + recipientID
}
