package request

// EntryRequest is the request body for entering the funnel
type EntryRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// VerifyRequest is the request body for verifying an OTP
type VerifyRequest struct {
	OTP string `json:"otp"`
}

// MarkRedeemedRequest is the request body for marking a reward code redeemed
type MarkRedeemedRequest struct {
	DiscountCode string `json:"discount_code"`
}

// DiscountCodeRef is one code in a discount-used webhook
type DiscountCodeRef struct {
	Code string `json:"code"`
}

// DiscountUsedRequest is the discount-used webhook payload
type DiscountUsedRequest struct {
	DiscountCodes []DiscountCodeRef `json:"discount_codes"`
}

// Codes returns the non-empty codes in the payload
func (r DiscountUsedRequest) Codes() []string {
	codes := make([]string, 0, len(r.DiscountCodes))
	for _, c := range r.DiscountCodes {
		if c.Code != "" {
			codes = append(codes, c.Code)
		}
	}
	return codes
}

// CustomerTagAddedRequest is the customer-tag-added webhook payload
type CustomerTagAddedRequest struct {
	CustomerID string   `json:"customerId"`
	Tags       []string `json:"tags"`
}
