// Package permission resolves what a principal may do with a quote.
// It is a pure function of its input; callers supply the live buyer profile.
package permission

import "github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/lifecycle"

// UserType is the buyer classification that drives visibility.
type UserType string

const (
	UserTypeGuest      UserType = "guest"
	UserTypeIndividual UserType = "individual"
	UserTypeBusiness   UserType = "business"
	UserTypeVerified   UserType = "verified"
)

// Valid reports whether t is a known user type.
func (t UserType) Valid() bool {
	switch t {
	case UserTypeGuest, UserTypeIndividual, UserTypeBusiness, UserTypeVerified:
		return true
	}
	return false
}

// Input describes the principal and the quote being checked.
type Input struct {
	UserType       UserType
	QuoteStatus    lifecycle.Status
	IsVerified     bool
	PricingVisible bool
	IsAdmin        bool
}

// Set is the fixed capability record for one principal and one quote.
type Set struct {
	CanViewQuote      bool `json:"can_view_quote"`
	CanViewPricing    bool `json:"can_view_pricing"`
	CanEditQuote      bool `json:"can_edit_quote"`
	CanConvertToOrder bool `json:"can_convert_to_order"`
	CanMessageAdmin   bool `json:"can_message_admin"`
	CanApprove        bool `json:"can_approve"`
	CanReject         bool `json:"can_reject"`
	CanSetPricing     bool `json:"can_set_pricing"`
}

// Resolve computes the capability set. Admin and buyer rules never mix: an admin never
// converts or messages admin, a buyer never edits, approves, rejects or sets pricing.
func Resolve(in Input) Set {
	if in.IsAdmin {
		return resolveAdmin(in.QuoteStatus)
	}
	return Set{
		CanViewQuote:      true,
		CanViewPricing:    CanViewPricing(in.UserType, in.QuoteStatus, in.IsVerified, in.PricingVisible),
		CanConvertToOrder: CanConvertToOrder(in.UserType, in.QuoteStatus, in.IsVerified),
		CanMessageAdmin:   CanMessageAdmin(in.UserType, in.IsVerified),
	}
}

func resolveAdmin(status lifecycle.Status) Set {
	return Set{
		CanViewQuote:   true,
		CanViewPricing: true,
		CanEditQuote:   status != lifecycle.StatusConverted,
		CanApprove:     status == lifecycle.StatusReviewing,
		CanReject:      status == lifecycle.StatusPending || status == lifecycle.StatusReviewing,
		CanSetPricing:  status == lifecycle.StatusReviewing || status == lifecycle.StatusApproved,
	}
}

// isVerifiedBusiness requires both the classification and the verification flag.
func isVerifiedBusiness(userType UserType, isVerified bool) bool {
	return userType == UserTypeVerified && isVerified
}

// CanViewPricing reports whether a buyer may see final pricing.
func CanViewPricing(userType UserType, status lifecycle.Status, isVerified, pricingVisible bool) bool {
	if !isVerifiedBusiness(userType, isVerified) || !pricingVisible {
		return false
	}
	return status == lifecycle.StatusApproved || status == lifecycle.StatusConverted
}

// CanConvertToOrder reports whether a buyer may turn the quote into an order.
func CanConvertToOrder(userType UserType, status lifecycle.Status, isVerified bool) bool {
	return isVerifiedBusiness(userType, isVerified) && status == lifecycle.StatusApproved
}

// CanMessageAdmin reports whether a buyer may open a message thread with the sales team.
func CanMessageAdmin(userType UserType, isVerified bool) bool {
	return isVerifiedBusiness(userType, isVerified)
}
