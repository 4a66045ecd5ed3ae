package payment

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var txnSeq atomic.Uint64

// NewMerchantTransactionID returns an alphanumeric id unique per call: the
// millisecond clock, a process-wide counter and a random suffix. The gateway
// caps the id at 35 characters; this is 25.
func NewMerchantTransactionID() string {
	return fmt.Sprintf("MT%d%04d%s", time.Now().UnixMilli(), txnSeq.Add(1)%10000, randomHex(6))
}

// NewMerchantUserID is used when the payer has no account id.
func NewMerchantUserID() string {
	return "MUID" + randomHex(16)
}

func randomHex(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}
