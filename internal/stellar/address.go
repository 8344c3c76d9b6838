package stellar

import (
	"regexp"
	"strings"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/strkey"
)

var addressPattern = regexp.MustCompile(`^G[A-Z2-7]{55}$`)

// IsValidAddress 校验账户地址：格式 + 校验和
func IsValidAddress(address string) bool {
	if address == "" || !addressPattern.MatchString(address) {
		return false
	}
	_, err := strkey.Decode(strkey.VersionByteAccountID, address)
	return err == nil
}

// ParseSecret 解析私钥
func ParseSecret(secret string) (*keypair.Full, error) {
	kp, err := keypair.ParseFull(strings.TrimSpace(secret))
	if err != nil {
		return nil, &InvalidKeyError{}
	}
	return kp, nil
}

// AddressFromSecret 由私钥推导账户地址
func AddressFromSecret(secret string) (string, error) {
	kp, err := ParseSecret(secret)
	if err != nil {
		return "", err
	}
	return kp.Address(), nil
}

// MaskAddress 日志用的地址缩写
func MaskAddress(address string) string {
	if len(address) <= 10 {
		return address
	}
	return address[:4] + "..." + address[len(address)-4:]
}
