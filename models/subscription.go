package models

import (
	"regexp"
)

// Subscription is the RevenueCat-derived plan stored on the account after a
// sync. It gates nothing server-side yet; token budgets do the limiting.
type Subscription string

const (
	Free    Subscription = "free"
	Trial   Subscription = "trial"
	Pro     Subscription = "pro"
	ProPlus Subscription = "pro_plus"
)

func ValidateSubscriptionRaw(value string) bool {
	matched, _ := regexp.MatchString("^(free|trial|pro|pro_plus)$", value)
	return matched
}
