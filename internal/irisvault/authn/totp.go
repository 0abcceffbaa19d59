package authn

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpPeriod = 30
	totpDigits = otp.DigitsSix
)

var totpOpts = totp.ValidateOpts{
	Period:    totpPeriod,
	Digits:    totpDigits,
	Algorithm: otp.AlgorithmSHA1,
}

// TOTPKey is a freshly generated enrollment secret.
type TOTPKey struct {
	Secret string
	URL    string
}

func GenerateTOTP(issuer, account string) (TOTPKey, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      totpPeriod,
		Digits:      totpDigits,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return TOTPKey{}, fmt.Errorf("totp generate: %w", err)
	}
	return TOTPKey{Secret: key.Secret(), URL: key.URL()}, nil
}

// TOTPStep is the RFC 6238 time counter for t.
func TOTPStep(t time.Time) int64 {
	return t.Unix() / totpPeriod
}

// TOTPCode returns the code for the step containing t.
func TOTPCode(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t, totpOpts)
}

// MatchTOTP looks for code in steps -1, 0 and +1 around now and returns the
// matching step. Steps at or before lastStep are refused so a code cannot be
// replayed.
func MatchTOTP(secret, code string, now time.Time, lastStep *int64) (int64, bool) {
	code = strings.TrimSpace(code)
	if secret == "" || len(code) != int(totpDigits) {
		return 0, false
	}
	cur := TOTPStep(now)
	for _, step := range []int64{cur - 1, cur, cur + 1} {
		if lastStep != nil && step <= *lastStep {
			continue
		}
		want, err := totp.GenerateCodeCustom(secret, time.Unix(step*totpPeriod, 0).UTC(), totpOpts)
		if err != nil {
			return 0, false
		}
		if subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1 {
			return step, true
		}
	}
	return 0, false
}
