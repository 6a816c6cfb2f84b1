package signup

import (
	"github.com/engineering-enforcatech/idonatio-backend/account"
)

// RegisterRequest contains the signup form data supplied by callers in
// step 2. The account kind is deliberately absent: it is taken from the
// step-1 token, never from the request body.
type RegisterRequest struct {
	FirstName        string `json:"firstName"`
	LastName         string `json:"lastName"`
	Country          string `json:"country"`
	PostalCode       string `json:"postalCode"`
	NationalID       string `json:"nationalId"`
	Email            string `json:"email"`
	Password         string `json:"password"`
	ConfirmPassword  string `json:"confirmPassword"`
	OrganizationName string `json:"organizationName"`
}

// VerifyResult bundles the credential token and the activated account
// returned after a successful step 3.
type VerifyResult struct {
	Token   string
	Account account.Account
}
