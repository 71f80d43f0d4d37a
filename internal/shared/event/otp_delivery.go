package event

const OTPDeliveryDestination string = "otp_delivery"
const OTPDeliveryConsumerNotification string = "otp_delivery_notification"

// OTPDeliveryMessage asks the notification worker to email a verification code.
// Code is the plain code; consumers must never log the body as is.
type OTPDeliveryMessage struct {
	ChallengeID      int64  `json:"challenge_id"`
	Identity         string `json:"identity"`
	DisplayName      string `json:"display_name"`
	Code             string `json:"code"`
	ExpiresInSeconds int64  `json:"expires_in_seconds"`
}
