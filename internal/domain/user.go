package domain

import "time"

type SubscriptionStatus string

const (
	SubscriptionFree    SubscriptionStatus = "Free"
	SubscriptionPremium SubscriptionStatus = "Premium"
)

type Subscription struct {
	Status         SubscriptionStatus `json:"status"`
	ExpiryDate     *time.Time         `json:"expiryDate,omitempty"`
	SubscriptionID *string            `json:"subscriptionId,omitempty"`
}

// User is owned by the auth/billing subsystem; this service only reads it.
type User struct {
	WalletAddress string       `json:"walletAddress"`
	Subscription  Subscription `json:"subscription"`
}

// EffectiveStatus reports Premium only while the subscription has not expired.
func (u *User) EffectiveStatus(now time.Time) SubscriptionStatus {
	if u == nil || u.Subscription.Status != SubscriptionPremium {
		return SubscriptionFree
	}
	if u.Subscription.ExpiryDate != nil && now.After(*u.Subscription.ExpiryDate) {
		return SubscriptionFree
	}
	return SubscriptionPremium
}
