package clerk

import "encoding/json"

// WebhookEvent is the envelope Clerk posts to our webhook endpoint.
type WebhookEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type EmailAddress struct {
	EmailAddress string `json:"email_address"`
	Verification struct {
		Status string `json:"status"`
	} `json:"verification"`
}

// UserData is the user object embedded in user.* webhook events.
type UserData struct {
	ID              string         `json:"id"`
	Username        string         `json:"username"`
	FirstName       string         `json:"first_name"`
	LastName        string         `json:"last_name"`
	ImageURL        string         `json:"image_url"`
	ProfileImageURL string         `json:"profile_image_url"`
	EmailAddresses  []EmailAddress `json:"email_addresses"`
}
