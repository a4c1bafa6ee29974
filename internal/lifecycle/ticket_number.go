package lifecycle

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const numberAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// TicketNumber renders TKT-<base36 unix millis>-<3 random base36 chars>,
// all upper case.
func TicketNumber(at time.Time) string {
	stamp := strings.ToUpper(strconv.FormatInt(at.UnixMilli(), 36))
	return "TKT-" + stamp + "-" + randomSuffix(3)
}

func randomSuffix(n int) string {
	var b strings.Builder
	limit := big.NewInt(int64(len(numberAlphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			b.WriteByte(numberAlphabet[time.Now().UnixNano()%int64(len(numberAlphabet))])
			continue
		}
		b.WriteByte(numberAlphabet[idx.Int64()])
	}
	return b.String()
}
