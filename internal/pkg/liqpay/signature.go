package liqpay

import (
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
)

// Sign computes the LiqPay request signature for a base64-encoded data
// payload: base64(sha1(privateKey + data + privateKey)).
func Sign(privateKey, data string) string {
	h := sha1.New()
	h.Write([]byte(privateKey))
	h.Write([]byte(data))
	h.Write([]byte(privateKey))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// VerifySignature checks a callback signature in constant time.
func VerifySignature(privateKey, data, signature string) bool {
	expected := Sign(privateKey, data)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
