package domain

import "time"

type CallbackOutcome string

const (
	OutcomeRejected           CallbackOutcome = "REJECTED"
	OutcomeMalformed          CallbackOutcome = "MALFORMED"
	OutcomeUnknownTransaction CallbackOutcome = "UNKNOWN_TRANSACTION"
	OutcomeApplied            CallbackOutcome = "APPLIED"
	OutcomeDuplicate          CallbackOutcome = "DUPLICATE"
	OutcomeGatewayUnavailable CallbackOutcome = "GATEWAY_UNAVAILABLE"
	OutcomeError              CallbackOutcome = "ERROR"
)

// CallbackLog is an append-only record of one gateway callback delivery.
type CallbackLog struct {
	ID                    string          `json:"id" dynamodbav:"id"`
	Kind                  Kind            `json:"kind" dynamodbav:"kind"`
	MerchantTransactionID string          `json:"merchantTransactionId,omitempty" dynamodbav:"merchant_transaction_id,omitempty"`
	Verified              bool            `json:"verified" dynamodbav:"verified"`
	Outcome               CallbackOutcome `json:"outcome" dynamodbav:"outcome"`
	Payload               string          `json:"payload" dynamodbav:"payload"`
	ReceivedAt            time.Time       `json:"receivedAt" dynamodbav:"received_at"`
}
