package types

// Tier identifies the entitlement level of a profile. It controls feature
// access and the saved-position quota.
type Tier string

const (
	TierFree    Tier = "free"
	TierPro     Tier = "pro"
	TierPremium Tier = "premium"
)

// IsPaid reports whether the tier is a paying tier.
func (t Tier) IsPaid() bool {
	return t == TierPro || t == TierPremium
}

// SubscriptionStatus mirrors the payment provider's subscription status
// vocabulary. Webhook handlers pass provider statuses through 1:1 rather
// than collapsing them, so unrecognized values survive round trips.
type SubscriptionStatus string

const (
	SubStatusInactive           SubscriptionStatus = "inactive"
	SubStatusActive             SubscriptionStatus = "active"
	SubStatusCanceled           SubscriptionStatus = "canceled"
	SubStatusPastDue            SubscriptionStatus = "past_due"
	SubStatusTrialing           SubscriptionStatus = "trialing"
	SubStatusUnpaid             SubscriptionStatus = "unpaid"
	SubStatusIncomplete         SubscriptionStatus = "incomplete"
	SubStatusIncompleteExpired  SubscriptionStatus = "incomplete_expired"
)

// ApplicationStatus tracks a position application through its pipeline.
type ApplicationStatus string

const (
	AppStatusSaved        ApplicationStatus = "saved"
	AppStatusApplied      ApplicationStatus = "applied"
	AppStatusInterviewing ApplicationStatus = "interviewing"
	AppStatusOffered      ApplicationStatus = "offered"
	AppStatusRejected     ApplicationStatus = "rejected"
)

// ValidApplicationStatus reports whether s is a known pipeline status.
func ValidApplicationStatus(s ApplicationStatus) bool {
	switch s {
	case AppStatusSaved, AppStatusApplied, AppStatusInterviewing, AppStatusOffered, AppStatusRejected:
		return true
	}
	return false
}
